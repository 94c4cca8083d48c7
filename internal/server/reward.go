package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	programdomain "github.com/smallbiznis/perkly/internal/program/domain"
)

type createRewardRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	RequiredValue float64    `json:"required_value"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidTo       *time.Time `json:"valid_to"`
}

type updateRewardRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	RequiredValue *float64   `json:"required_value"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidTo       *time.Time `json:"valid_to"`
	IsActive      *bool      `json:"is_active"`
}

func (s *Server) CreateReward(c *gin.Context) {
	var req createRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.programSvc.CreateReward(c.Request.Context(), programdomain.CreateRewardRequest{
		ProgramID:     strings.TrimSpace(c.Param("id")),
		Title:         strings.TrimSpace(req.Title),
		Description:   strings.TrimSpace(req.Description),
		RequiredValue: req.RequiredValue,
		ValidFrom:     req.ValidFrom,
		ValidTo:       req.ValidTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateReward(c *gin.Context) {
	var req updateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.programSvc.UpdateReward(c.Request.Context(), programdomain.UpdateRewardRequest{
		ID:            strings.TrimSpace(c.Param("id")),
		Title:         req.Title,
		Description:   req.Description,
		RequiredValue: req.RequiredValue,
		ValidFrom:     req.ValidFrom,
		ValidTo:       req.ValidTo,
		IsActive:      req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRewards(c *gin.Context) {
	isActive, err := parseOptionalBool(c.Query("is_active"))
	if err != nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "invalid is_active"))
		return
	}

	resp, err := s.programSvc.ListRewards(c.Request.Context(), programdomain.ListRewardRequest{
		ProgramID: strings.TrimSpace(c.Param("id")),
		IsActive:  isActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
