package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/perkly/internal/orgcontext"
)

const HeaderOrg = "X-Org-ID"

// OrgRequired resolves the organization from the X-Org-ID header and injects
// it into the request context. Every tenant-scoped route goes through here.
// When the header is absent and a default org is configured, the default org
// is used (single-tenant installs).
func (s *Server) OrgRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" && s.cfg.DefaultOrgID != 0 {
			ctx := orgcontext.WithOrgID(c.Request.Context(), s.cfg.DefaultOrgID)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID == 0 {
			AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid or missing X-Org-ID header"))
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), int64(orgID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
