package auth

import (
	"net/http"

	apphttp "tripflow_backend/internal/http"
	"tripflow_backend/platform/httpkit"
	"tripflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Module exposes the login endpoint on the public v1 group.
type Module struct {
	service *Service
	val     *validator.Validator
}

func NewModule(service *Service, val *validator.Validator) *Module {
	return &Module{service: service, val: val}
}

func (m *Module) Name() string { return "auth" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/auth/login", m.login)
}

func (m *Module) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := m.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	result, err := m.service.Login(c.Request.Context(), req.Email, req.Password)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}
