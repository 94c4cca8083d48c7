package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	storedomain "github.com/smallbiznis/perkly/internal/store/domain"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
)

type createStoreRequest struct {
	BrandID string `json:"brand_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
}

type updateStoreRequest struct {
	Name     *string `json:"name"`
	Address  *string `json:"address"`
	City     *string `json:"city"`
	Country  *string `json:"country"`
	Phone    *string `json:"phone"`
	IsActive *bool   `json:"is_active"`
}

func (s *Server) CreateStore(c *gin.Context) {
	var req createStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.storeSvc.Create(c.Request.Context(), storedomain.CreateStoreRequest{
		BrandID: strings.TrimSpace(req.BrandID),
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		City:    strings.TrimSpace(req.City),
		Country: strings.TrimSpace(req.Country),
		Phone:   strings.TrimSpace(req.Phone),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateStore(c *gin.Context) {
	var req updateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.storeSvc.Update(c.Request.Context(), storedomain.UpdateStoreRequest{
		ID:       strings.TrimSpace(c.Param("id")),
		Name:     req.Name,
		Address:  req.Address,
		City:     req.City,
		Country:  req.Country,
		Phone:    req.Phone,
		IsActive: req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetStoreByID(c *gin.Context) {
	resp, err := s.storeSvc.GetByID(c.Request.Context(), storedomain.GetStoreRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListStores(c *gin.Context) {
	var query struct {
		pagination.Pagination
		BrandID  string `form:"brand_id"`
		Name     string `form:"name"`
		City     string `form:"city"`
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

	resp, err := s.storeSvc.List(c.Request.Context(), storedomain.ListStoreRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		BrandID:   strings.TrimSpace(query.BrandID),
		Name:      strings.TrimSpace(query.Name),
		City:      strings.TrimSpace(query.City),
		IsActive:  isActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isStoreValidationError(err error) bool {
	switch err {
	case storedomain.ErrInvalidOrganization,
		storedomain.ErrInvalidBrand,
		storedomain.ErrInvalidName,
		storedomain.ErrInvalidID:
		return true
	default:
		return false
	}
}
