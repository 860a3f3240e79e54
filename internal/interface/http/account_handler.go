package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swordot/portal/internal/application"
	"github.com/swordot/portal/internal/interface/middleware"
	"github.com/swordot/portal/pkg/response"
	"github.com/swordot/portal/pkg/validation"
)

type AccountHandler struct {
	Svc    *application.AccountService
	Logger *logrus.Logger
}

func NewAccountHandler(svc *application.AccountService, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Svc: svc, Logger: logger}
}

// password carries no binding rule: its length policy belongs to the service, which
// checks it after uniqueness.
type createAccountRequest struct {
	Name     string `json:"name" binding:"required,accname"`
	Email    string `json:"email" binding:"required,mailbox"`
	Password string `json:"password"`
}

type viewer struct {
	IsOwner bool `json:"is_owner"`
}

// Create handles POST /api/account/create and POST /api/accounts.
func (h *AccountHandler) Create(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		MethodNotAllowed(c)
		return
	}
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, msgInvalidPayload, validation.ToDetails(err))
		return
	}

	out, err := h.Svc.CreateAccount(c.Request.Context(), application.CreateAccountInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.GetString("real_ip"),
		UserAgent: c.Request.UserAgent(),
	})
	switch {
	case errors.Is(err, application.ErrAccountConflict):
		response.Error(c, http.StatusConflict, msgAccountConflict, nil)
	case errors.Is(err, application.ErrInvalidCredential):
		response.Error(c, http.StatusBadRequest, msgInvalidCredential, nil)
	case err != nil:
		internalError(c, h.Logger, "create account failed", err)
	default:
		response.JSON(c, http.StatusCreated, gin.H{"account": out})
	}
}

// GetByName handles GET /api/accounts/:name. viewer.is_owner is true when the signed-in
// account is the one being viewed.
func (h *AccountHandler) GetByName(c *gin.Context) {
	name := c.Param("name")
	detail, err := h.Svc.GetAccountByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, application.ErrAccountNotFound) {
			response.Error(c, http.StatusNotFound, "account not found", nil)
			return
		}
		internalError(c, h.Logger, "get account failed", err)
		return
	}

	v := viewer{}
	if u, ok := middleware.CurrentUser(c); ok {
		v.IsOwner = u.Name == detail.Name
	}
	response.JSON(c, http.StatusOK, gin.H{"account": detail, "viewer": v})
}

// Search handles GET /api/search/accounts?q=&size=.
func (h *AccountHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	hits, err := h.Svc.SearchAccounts(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		internalError(c, h.Logger, "search accounts failed", err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"accounts": hits})
}
