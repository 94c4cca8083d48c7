package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	carddomain "github.com/smallbiznis/perkly/internal/card/domain"
	"github.com/smallbiznis/perkly/pkg/db/pagination"
)

type issueCardRequest struct {
	ProgramID  string `json:"program_id"`
	CustomerID string `json:"customer_id"`
}

type issueStampsRequest struct {
	Count   int     `json:"count"`
	Amount  float64 `json:"amount"`
	StoreID string  `json:"store_id"`
	Note    string  `json:"note"`
}

type addPointsRequest struct {
	Points  float64 `json:"points"`
	Amount  float64 `json:"amount"`
	StoreID string  `json:"store_id"`
	Note    string  `json:"note"`
}

type redeemRewardRequest struct {
	RewardID string `json:"reward_id"`
	StoreID  string `json:"store_id"`
}

func (s *Server) IssueCard(c *gin.Context) {
	var req issueCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cardSvc.Issue(c.Request.Context(), carddomain.IssueCardRequest{
		ProgramID:  strings.TrimSpace(req.ProgramID),
		CustomerID: strings.TrimSpace(req.CustomerID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCardByID(c *gin.Context) {
	resp, err := s.cardSvc.GetByID(c.Request.Context(), carddomain.GetCardRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCardByQRCode(c *gin.Context) {
	resp, err := s.cardSvc.GetByQRCode(c.Request.Context(), carddomain.GetCardByQRCodeRequest{
		QRCode: strings.TrimSpace(c.Param("code")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCards(c *gin.Context) {
	var query struct {
		pagination.Pagination
		ProgramID  string `form:"program_id"`
		CustomerID string `form:"customer_id"`
		Status     string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cardSvc.List(c.Request.Context(), carddomain.ListCardRequest{
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
		ProgramID:  strings.TrimSpace(query.ProgramID),
		CustomerID: strings.TrimSpace(query.CustomerID),
		Status:     strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) IssueStamps(c *gin.Context) {
	var req issueStampsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cardSvc.IssueStamps(c.Request.Context(), carddomain.IssueStampsRequest{
		CardID:  strings.TrimSpace(c.Param("id")),
		Count:   req.Count,
		Amount:  req.Amount,
		StoreID: strings.TrimSpace(req.StoreID),
		Note:    strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddPoints(c *gin.Context) {
	var req addPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cardSvc.AddPoints(c.Request.Context(), carddomain.AddPointsRequest{
		CardID:  strings.TrimSpace(c.Param("id")),
		Points:  req.Points,
		Amount:  req.Amount,
		StoreID: strings.TrimSpace(req.StoreID),
		Note:    strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RedeemReward(c *gin.Context) {
	var req redeemRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cardSvc.RedeemReward(c.Request.Context(), carddomain.RedeemRewardRequest{
		CardID:   strings.TrimSpace(c.Param("id")),
		RewardID: strings.TrimSpace(req.RewardID),
		StoreID:  strings.TrimSpace(req.StoreID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SuspendCard(c *gin.Context) {
	resp, err := s.cardSvc.Suspend(c.Request.Context(), carddomain.SuspendCardRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReactivateCard(c *gin.Context) {
	resp, err := s.cardSvc.Reactivate(c.Request.Context(), carddomain.ReactivateCardRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCardTransactions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Type string `form:"type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cardSvc.ListTransactions(c.Request.Context(), carddomain.ListTransactionRequest{
		CardID:    strings.TrimSpace(c.Param("id")),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Type:      strings.TrimSpace(query.Type),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isCardValidationError(err error) bool {
	switch err {
	case carddomain.ErrInvalidOrganization,
		carddomain.ErrInvalidID,
		carddomain.ErrInvalidProgram,
		carddomain.ErrInvalidCustomer,
		carddomain.ErrInvalidStore,
		carddomain.ErrInvalidCount,
		carddomain.ErrInvalidPoints,
		carddomain.ErrInvalidQRCode,
		carddomain.ErrInvalidStatus,
		carddomain.ErrInvalidRequiredValue:
		return true
	default:
		return false
	}
}
