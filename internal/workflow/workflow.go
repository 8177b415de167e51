// Package workflow orchestrates the count-and-save flow on top of the
// session manager: list drafts, look a serial up, validate the form, submit.
package workflow

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/rekadana/opname/internal/errs"
	"github.com/rekadana/opname/internal/model"
	"github.com/rekadana/opname/internal/session"
)

// Row is one rendered list entry: a left label and a right-aligned text.
type Row struct {
	Label string `json:"label"`
	Right string `json:"right"`
}

// Workflow drives the opname screens' data needs. All authenticated calls go
// through WithValidToken so the refresh-before-call policy holds.
type Workflow struct {
	sess *session.Manager
	log  *zap.Logger
}

// New constructs a Workflow bound to a session.
func New(sess *session.Manager, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{sess: sess, log: logger.Named("workflow")}
}

// DraftRows lists the draft sessions of the signed-in user's office and
// department, rendered as list rows.
func (w *Workflow) DraftRows(ctx context.Context) ([]Row, error) {
	u := w.sess.User()
	if u == nil {
		return nil, fmt.Errorf("draft rows: %w", errs.ErrUnauthorized)
	}

	var drafts []model.DraftRecord
	err := w.sess.WithValidToken(ctx, func(ctx context.Context, _ string) error {
		var ferr error
		drafts, ferr = w.sess.FetchDrafts(ctx, u.OfficeCode, u.DeptCode)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(drafts))
	for _, d := range drafts {
		rows = append(rows, Row{
			Label: fmt.Sprintf("%s | %s", d.NoRefSO, d.TglSO),
			Right: d.PersentaseSO,
		})
	}
	return rows, nil
}

// LookupItem resolves a scanned serial (or asset tag) within a draft. An
// empty backend result maps to ErrNotFound so the caller shows the notice and
// leaves the condition/location/photo sub-form untouched.
func (w *Workflow) LookupItem(ctx context.Context, noref, serial string) (*model.ItemRecord, error) {
	if strings.TrimSpace(serial) == "" {
		return nil, fmt.Errorf("serial number is required: %w", errs.ErrValidation)
	}
	if strings.TrimSpace(noref) == "" {
		return nil, fmt.Errorf("noref is required: %w", errs.ErrValidation)
	}

	var items []model.ItemRecord
	err := w.sess.WithValidToken(ctx, func(ctx context.Context, _ string) error {
		var ferr error
		items, ferr = w.sess.CheckItem(ctx, noref, serial)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		w.log.Info("serial not found in draft", zap.String("noref", noref), zap.String("serial", serial))
		return nil, fmt.Errorf("item %s not found in %s: %w", serial, noref, errs.ErrNotFound)
	}
	item := items[0]
	return &item, nil
}

// SubmitCount validates the form locally and submits one counted item. Local
// violations never reach the backend.
func (w *Workflow) SubmitCount(ctx context.Context, req model.SaveItemRequest) error {
	switch {
	case strings.TrimSpace(req.NoRef) == "":
		return fmt.Errorf("noref is required: %w", errs.ErrValidation)
	case strings.TrimSpace(req.ItemID) == "":
		return fmt.Errorf("item must be resolved before saving: %w", errs.ErrValidation)
	case strings.TrimSpace(req.ConditionID) == "":
		return fmt.Errorf("condition is required: %w", errs.ErrValidation)
	case strings.TrimSpace(req.Location) == "":
		return fmt.Errorf("location is required: %w", errs.ErrValidation)
	}
	if req.Username == "" {
		if u := w.sess.User(); u != nil {
			req.Username = u.Username
		}
	}

	return w.sess.WithValidToken(ctx, func(ctx context.Context, _ string) error {
		return w.sess.SaveItem(ctx, req)
	})
}

// ProgressSummary reports counted vs total for one draft.
func (w *Workflow) ProgressSummary(ctx context.Context, noref string) (draft, updated int, err error) {
	err = w.sess.WithValidToken(ctx, func(ctx context.Context, _ string) error {
		records, ferr := w.sess.FetchProgress(ctx, noref)
		if ferr != nil {
			return ferr
		}
		for _, r := range records {
			draft += r.ItemDraft
			updated += r.ItemUpdate
		}
		return nil
	})
	return draft, updated, err
}

// Conditions loads the condition enumeration for the sub-form dropdown.
func (w *Workflow) Conditions(ctx context.Context) ([]model.ConditionCode, error) {
	var codes []model.ConditionCode
	err := w.sess.WithValidToken(ctx, func(ctx context.Context, _ string) error {
		var ferr error
		codes, ferr = w.sess.FetchConditions(ctx)
		return ferr
	})
	return codes, err
}

// EncodePhoto base64-encodes the final capture reference for the save
// payload. An empty path yields an empty payload (photo optional).
func EncodePhoto(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
