// Command stubserver is a development stand-in for the opname backend. It
// serves the REST surface the field client consumes, backed by in-memory
// fixtures. Not for production use.
package main

import (
	"flag"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/rekadana/opname/internal/crypto"
	"github.com/rekadana/opname/internal/model"
)

type fixtures struct {
	mu sync.Mutex

	user     model.UserProfile
	username string
	passSalt []byte
	passHash string

	drafts     []model.DraftRecord
	items      map[string][]model.ItemRecord // noref -> lines
	conditions []model.ConditionCode
	saved      map[string]int // noref -> saved count
}

func seed() *fixtures {
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		panic(err)
	}
	f := &fixtures{
		user: model.UserProfile{
			ID:         "u-001",
			Username:   "budi",
			OfficeCode: "OFC1",
			OfficeName: "Kantor Pusat",
			DeptCode:   "DPT1",
			DeptName:   "General Affairs",
			GroupName:  "opname",
		},
		username: "budi",
		passSalt: salt,
		passHash: pkgcrypto.HashPassword([]byte("rahasia123"), salt),
		drafts: []model.DraftRecord{
			{NoRefSO: "SO-001", TglSO: "2024-01-01", ItemsSO: 10, PersentaseSO: "40%"},
			{NoRefSO: "SO-002", TglSO: "2024-02-15", ItemsSO: 25, PersentaseSO: "0%"},
		},
		items: map[string][]model.ItemRecord{
			"SO-001": {
				{IDBarang: "BRG-1", DescBarang: "Laptop", DatBarang: "DAT-1", SNBarang: "SN123", AssetBarang: "AST-1", KonBarang: true},
				{IDBarang: "BRG-2", DescBarang: "Printer", DatBarang: "DAT-2", SNBarang: "SN456", AssetBarang: "AST-2", KonBarang: false},
			},
		},
		conditions: []model.ConditionCode{
			{IDKondisi: "K1", NameKondisi: "Baik"},
			{IDKondisi: "K2", NameKondisi: "Rusak Ringan"},
			{IDKondisi: "K3", NameKondisi: "Rusak Berat"},
		},
		saved: map[string]int{"SO-001": 4},
	}
	return f
}

type server struct {
	fx  *fixtures
	key []byte
	ttl time.Duration
	log *zap.Logger
}

func main() {
	addr := flag.String("addr", ":8089", "listen address")
	jwtKey := flag.String("jwt-key", "stub-only-key", "HS256 signing key")
	ttl := flag.Duration("access-ttl", 15*time.Minute, "access token TTL")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	s := &server{fx: seed(), key: []byte(*jwtKey), ttl: *ttl, log: logger}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	api.POST("/auth/users/login", s.login)
	api.POST("/auth/users/logout", s.logout)

	authed := api.Group("", s.requireToken)
	authed.GET("/so/token/refresh", s.refresh)
	authed.POST("/so/records/drafts", s.drafts)
	authed.POST("/so/records/items", s.items)
	authed.POST("/so/records/progress", s.progress)
	authed.POST("/so/records/process", s.checkItem)
	authed.PUT("/so/records/process/:noref", s.saveItem)
	authed.GET("/master/kondisi", s.conditions)
	authed.POST("/help/upload-log", s.uploadLog)

	logger.Info("stub backend listening", zap.String("addr", *addr))
	if err := r.Run(*addr); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

func (s *server) issueToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   s.fx.user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *server) parseToken(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return s.key, nil })
	return claims, err
}

func (s *server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	if req.Username != s.fx.username || !pkgcrypto.VerifyPassword([]byte(req.Password), s.fx.passSalt, s.fx.passHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "username atau password salah"})
		return
	}
	token, err := s.issueToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token issue failed"})
		return
	}
	s.log.Info("login", zap.String("username", req.Username))
	c.JSON(http.StatusOK, gin.H{"token": token, "user": s.fx.user})
}

func (s *server) logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// requireToken rejects requests without a verifiable bearer token.
func (s *server) requireToken(c *gin.Context) {
	h := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
		return
	}
	claims, err := s.parseToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "token tidak valid"})
		return
	}
	c.Set("claims", claims)
	c.Next()
}

// refresh reissues a token when less than half its TTL remains; otherwise it
// reports "still valid" without a token field.
func (s *server) refresh(c *gin.Context) {
	claims := c.MustGet("claims").(*jwt.RegisteredClaims)
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining > s.ttl/2 {
		c.JSON(http.StatusOK, gin.H{"success": true, "user": s.fx.user})
		return
	}
	token, err := s.issueToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "user": s.fx.user})
}

func (s *server) drafts(c *gin.Context) {
	var req struct {
		Office     string `json:"office"`
		Department string `json:"department"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	if req.Office != s.fx.user.OfficeCode || req.Department != s.fx.user.DeptCode {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "tidak ada draft untuk kantor tersebut"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": s.fx.drafts})
}

func (s *server) items(c *gin.Context) {
	var req struct {
		NoRef string `json:"noref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	lines, ok := s.fx.items[req.NoRef]
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "noref tidak ditemukan"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"date": time.Now().Format("2006-01-02"), "items": lines}})
}

func (s *server) progress(c *gin.Context) {
	var req struct {
		NoRef string `json:"noref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	s.fx.mu.Lock()
	defer s.fx.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": []gin.H{
		{"itemDraft": len(s.fx.items[req.NoRef]), "itemUpdate": s.fx.saved[req.NoRef]},
	}})
}

func (s *server) checkItem(c *gin.Context) {
	var req struct {
		NoRef string `json:"noref"`
		NoID  string `json:"noid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	matches := []model.ItemRecord{}
	for _, it := range s.fx.items[req.NoRef] {
		if it.SNBarang == req.NoID || it.DatBarang == req.NoID {
			matches = append(matches, it)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": matches})
}

func (s *server) saveItem(c *gin.Context) {
	noref := c.Param("noref")
	var req struct {
		NoCode    string  `json:"nocode"`
		NoID      string  `json:"noid"`
		Condition string  `json:"condition"`
		Location  string  `json:"location"`
		User      string  `json:"user"`
		Photo     *string `json:"photo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	if req.Condition == "" || req.Location == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "condition dan location wajib diisi"})
		return
	}
	s.fx.mu.Lock()
	s.fx.saved[noref]++
	count := s.fx.saved[noref]
	s.fx.mu.Unlock()
	s.log.Info("item saved",
		zap.String("noref", noref),
		zap.String("item", req.NoCode),
		zap.Bool("photo", req.Photo != nil))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"saved": count}})
}

func (s *server) conditions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "kondisi": s.fx.conditions})
}

func (s *server) uploadLog(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing log file"})
		return
	}
	s.log.Info("log received",
		zap.String("file", file.Filename),
		zap.Int64("size", file.Size),
		zap.String("platform", c.PostForm("platform")),
		zap.String("message", c.PostForm("message")))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
