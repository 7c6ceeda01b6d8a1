package handlers

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/finsight/platform/internal/auth"
	"github.com/finsight/platform/internal/common"
	"github.com/finsight/platform/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type createUserReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// generate a 11 digit random username
func randomUsername11() (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 11)
	for i := 0; i < 11; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[n.Int64()]
	}
	return string(out), nil
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email and password required")
		return
	}

	username := req.Username
	if username == "" {
		var err error
		username, err = randomUsername11()
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	u := &models.User{
		Email:            req.Email,
		Username:         username,
		PasswordHash:     hash,
		SubscriptionTier: "free",
		IsActive:         true,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(u).Error; err != nil {
		common.Fail(c, http.StatusConflict, 10010, "email or username already taken")
		return
	}

	common.OK(c, gin.H{"id": u.ID, "email": u.Email, "username": u.Username})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var u models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("email = ?", req.Email).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40110, "bad credentials")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40110, "bad credentials")
		return
	}

	token, err := auth.IssueToken(h.Cfg.JWTSecret, u.ID, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"token": token})
}

func (h *Handler) Me(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		failUnauthorized(c)
		return
	}

	var u models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&u, uid).Error; err != nil {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}
	common.OK(c, u)
}
