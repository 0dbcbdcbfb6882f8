package license

import (
	"net/http"

	"license-authority/pkg/accesscontrol"
	"license-authority/pkg/db/pagination"
	"license-authority/pkg/errutil"
	"license-authority/pkg/httpapi"
	"license-authority/pkg/middleware"
	"license-authority/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the license API. Mutations additionally require a
// single-use signature over the request from a key the enforcer grants the
// matching action.
func RegisterRoutes(api httpapi.API, h *Handler, enforcer accesscontrol.Enforcer, verifier *middleware.SignatureVerifier) {
	signed := func(act string) []gin.HandlerFunc {
		return []gin.HandlerFunc{
			middleware.Signature(verifier),
			middleware.RequirePermission(enforcer, accesscontrol.ObjectLicense, act),
		}
	}

	api.POST("/licenses", append(signed(accesscontrol.ActionIssue), h.Issue)...)
	api.POST("/licenses/:address/renew", append(signed(accesscontrol.ActionRenew), h.Renew)...)
	api.POST("/licenses/:address/status", append(signed(accesscontrol.ActionSetStatus), h.SetActiveStatus)...)

	api.GET("/licenses", h.Resolve)
	api.GET("/licenses/:address", h.Get)
	api.GET("/licenses/:address/validity", h.CheckValidity)
	api.GET("/owners/:owner/licenses", h.ListByOwner)
}

type issueBody struct {
	Owner           string  `json:"owner" binding:"required"`
	SoftwareID      *uint64 `json:"softwareId" binding:"required"`
	DurationSeconds *int64  `json:"durationSeconds" binding:"required"`
}

type renewBody struct {
	DurationSeconds *int64 `json:"durationSeconds" binding:"required"`
}

type statusBody struct {
	Status *bool `json:"status" binding:"required"`
}

type listResponse struct {
	Items    []*License           `json:"items"`
	PageInfo *pagination.PageInfo `json:"pageInfo"`
}

func (h *Handler) Issue(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body issueBody
	if !bind(c, c.ShouldBindJSON(&body)) {
		return
	}

	owner, err := ParseIdentity(body.Owner)
	if err != nil {
		_ = c.Error(toBaseError(err))
		return
	}

	l, err := h.service.Issue(c.Request.Context(), IssueRequest{
		Owner:           owner,
		SoftwareID:      *body.SoftwareID,
		DurationSeconds: *body.DurationSeconds,
	}, caller)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, http.StatusCreated, l)
}

func (h *Handler) Renew(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body renewBody
	if !bind(c, c.ShouldBindJSON(&body)) {
		return
	}

	l, err := h.service.Renew(c.Request.Context(), c.Param("address"), *body.DurationSeconds, caller)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, http.StatusOK, l)
}

func (h *Handler) SetActiveStatus(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body statusBody
	if !bind(c, c.ShouldBindJSON(&body)) {
		return
	}

	l, err := h.service.SetActiveStatus(c.Request.Context(), c.Param("address"), *body.Status, caller)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, http.StatusOK, l)
}

func (h *Handler) Get(c *gin.Context) {
	l, err := h.service.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, http.StatusOK, l)
}

func (h *Handler) CheckValidity(c *gin.Context) {
	v, err := h.service.CheckValidity(c.Request.Context(), c.Param("address"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, http.StatusOK, v)
}

func (h *Handler) Resolve(c *gin.Context) {
	owner, err := ParseIdentity(c.Query("owner"))
	if err != nil {
		_ = c.Error(toBaseError(err))
		return
	}
	softwareID, err := ParseSoftwareID(c.Query("softwareId"))
	if err != nil {
		_ = c.Error(toBaseError(err))
		return
	}

	l, err := h.service.Resolve(c.Request.Context(), owner, softwareID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, http.StatusOK, l)
}

func (h *Handler) ListByOwner(c *gin.Context) {
	owner, err := ParseIdentity(c.Param("owner"))
	if err != nil {
		_ = c.Error(toBaseError(err))
		return
	}

	var page pagination.Pagination
	if !bind(c, c.ShouldBindQuery(&page)) {
		return
	}

	items, info, err := h.service.ListByOwner(c.Request.Context(), owner, page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if items == nil {
		items = []*License{}
	}

	response.OK(c, http.StatusOK, listResponse{Items: items, PageInfo: info})
}

// callerIdentity returns the key verified by the signature middleware.
func callerIdentity(c *gin.Context) (Identity, bool) {
	key, ok := middleware.AuthorityFromContext(c.Request.Context())
	if !ok {
		_ = c.Error(errutil.Unauthorized("Authority key and signature are required", nil, errutil.WithReason("MissingSignature")))
		return "", false
	}

	id, err := ParseIdentity(key)
	if err != nil {
		_ = c.Error(errutil.Unauthorized("Authority key is malformed", err, errutil.WithReason("InvalidAuthorityKey")))
		return "", false
	}
	return id, true
}

func bind(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	_ = c.Error(errutil.ValidationFailed("invalid request", err, errutil.WithDetails(errutil.Detail{
		Field:   "body",
		Message: err.Error(),
	})))
	return false
}
