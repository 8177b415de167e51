// Package model defines domain entities shared by the gateway, session and workflow layers.
package model

import "time"

// UserProfile is the authenticated account as reported by the backend.
// Opaque to the session layer beyond identity.
type UserProfile struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	OfficeCode string `json:"officeCode"`
	OfficeName string `json:"officeName"`
	DeptCode   string `json:"deptCode"`
	DeptName   string `json:"deptName"`
	GroupName  string `json:"groupName"`
	Avatar     string `json:"avatar,omitempty"`
}

// DraftRecord is one inventory count session listed per office/department.
type DraftRecord struct {
	NoRefSO      string `json:"noRefSO"`      // reference id
	TglSO        string `json:"tglSO"`        // draft date
	ItemsSO      int    `json:"itemsSO"`      // item count
	PersentaseSO string `json:"persentaseSO"` // percent complete, e.g. "40%"
}

// ItemRecord is a physical asset line matched by serial-number lookup
// within a draft.
type ItemRecord struct {
	IDBarang    string `json:"idBarang"`
	DescBarang  string `json:"descBarang"`
	DatBarang   string `json:"datBarang"`
	SNBarang    string `json:"snBarang"`
	AssetBarang string `json:"assetBarang"`
	KonBarang   bool   `json:"konBarang"`
}

// ConditionCode is an enumerated physical condition value, fetched once per
// session-refresh cycle.
type ConditionCode struct {
	IDKondisi   string `json:"idKondisi"`
	NameKondisi string `json:"nameKondisi"`
}

// ProgressRecord reports draft vs updated item counts for one noref.
type ProgressRecord struct {
	ItemDraft  int `json:"itemDraft"`
	ItemUpdate int `json:"itemUpdate"`
}

// CapturedPhoto holds the raw camera output and its watermarked derivative.
// FinalPath stays empty until the composite succeeds or the fallback is
// applied; a FinalPath never refers to anything but the most recent RawPath.
type CapturedPhoto struct {
	RawPath   string
	FinalPath string
	TakenAt   time.Time
	Fallback  bool
	Reason    string // composite failure reason, diagnostics only
}

// SaveItemRequest is the unit submitted to persist one counted item.
// Condition, Location and a resolved item id must all be present before
// submission is allowed.
type SaveItemRequest struct {
	NoRef       string
	ItemID      string
	Serial      string // SN or DAT used for the lookup
	ConditionID string
	Location    string
	Username    string
	PhotoBase64 string // empty when no photo was attached
}
