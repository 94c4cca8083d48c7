package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	programdomain "github.com/smallbiznis/perkly/internal/program/domain"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
)

type expirationPolicyRequest struct {
	Kind        string `json:"kind"`
	PeriodUnit  string `json:"period_unit"`
	PeriodValue int    `json:"period_value"`
	Day         int    `json:"day"`
	Month       int    `json:"month"`
}

func (r *expirationPolicyRequest) toDomain() *programdomain.ExpirationPolicy {
	if r == nil {
		return nil
	}
	return &programdomain.ExpirationPolicy{
		Kind:        programdomain.ExpirationKind(strings.TrimSpace(r.Kind)),
		PeriodUnit:  programdomain.PeriodUnit(strings.TrimSpace(r.PeriodUnit)),
		PeriodValue: r.PeriodValue,
		Day:         r.Day,
		Month:       r.Month,
	}
}

type createProgramRequest struct {
	BrandID              string                   `json:"brand_id"`
	Name                 string                   `json:"name"`
	Type                 string                   `json:"type"`
	StampThreshold       int                      `json:"stamp_threshold"`
	PointsConversionRate float64                  `json:"points_conversion_rate"`
	DailyStampLimit      *int                     `json:"daily_stamp_limit"`
	MinTransactionAmount float64                  `json:"min_transaction_amount"`
	Expiration           *expirationPolicyRequest `json:"expiration"`
}

type updateProgramRequest struct {
	Name                 *string                  `json:"name"`
	StampThreshold       *int                     `json:"stamp_threshold"`
	PointsConversionRate *float64                 `json:"points_conversion_rate"`
	DailyStampLimit      *int                     `json:"daily_stamp_limit"`
	ClearDailyStampLimit bool                     `json:"clear_daily_stamp_limit"`
	MinTransactionAmount *float64                 `json:"min_transaction_amount"`
	IsActive             *bool                    `json:"is_active"`
	Expiration           *expirationPolicyRequest `json:"expiration"`
	ClearExpiration      bool                     `json:"clear_expiration"`
}

func (s *Server) CreateProgram(c *gin.Context) {
	var req createProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.programSvc.Create(c.Request.Context(), programdomain.CreateProgramRequest{
		BrandID:              strings.TrimSpace(req.BrandID),
		Name:                 strings.TrimSpace(req.Name),
		Type:                 strings.TrimSpace(req.Type),
		StampThreshold:       req.StampThreshold,
		PointsConversionRate: req.PointsConversionRate,
		DailyStampLimit:      req.DailyStampLimit,
		MinTransactionAmount: req.MinTransactionAmount,
		Expiration:           req.Expiration.toDomain(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateProgram(c *gin.Context) {
	var req updateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.programSvc.Update(c.Request.Context(), programdomain.UpdateProgramRequest{
		ID:                   strings.TrimSpace(c.Param("id")),
		Name:                 req.Name,
		StampThreshold:       req.StampThreshold,
		PointsConversionRate: req.PointsConversionRate,
		DailyStampLimit:      req.DailyStampLimit,
		ClearDailyStampLimit: req.ClearDailyStampLimit,
		MinTransactionAmount: req.MinTransactionAmount,
		IsActive:             req.IsActive,
		Expiration:           req.Expiration.toDomain(),
		ClearExpiration:      req.ClearExpiration,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProgramByID(c *gin.Context) {
	resp, err := s.programSvc.GetByID(c.Request.Context(), programdomain.GetProgramRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPrograms(c *gin.Context) {
	var query struct {
		pagination.Pagination
		BrandID  string `form:"brand_id"`
		Type     string `form:"type"`
		IsActive string `form:"is_active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	isActive, err := parseOptionalBool(query.IsActive)
	if err != nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "invalid is_active"))
		return
	}

	resp, err := s.programSvc.List(c.Request.Context(), programdomain.ListProgramRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		BrandID:   strings.TrimSpace(query.BrandID),
		Type:      strings.TrimSpace(query.Type),
		IsActive:  isActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProgramAnalytics(c *gin.Context) {
	resp, err := s.programSvc.GetAnalytics(c.Request.Context(), programdomain.GetAnalyticsRequest{
		ProgramID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isProgramValidationError(err error) bool {
	switch err {
	case programdomain.ErrInvalidOrganization,
		programdomain.ErrInvalidBrand,
		programdomain.ErrInvalidName,
		programdomain.ErrInvalidType,
		programdomain.ErrInvalidThreshold,
		programdomain.ErrInvalidConversion,
		programdomain.ErrInvalidDailyLimit,
		programdomain.ErrInvalidMinAmount,
		programdomain.ErrInvalidExpiration,
		programdomain.ErrInvalidTitle,
		programdomain.ErrInvalidRequiredValue,
		programdomain.ErrInvalidDateRange,
		programdomain.ErrInvalidID:
		return true
	default:
		return false
	}
}
