package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollbook/internal/account"
)

const badBody = "Invalid request body"

func (h *Handler) Signup(c *gin.Context) {
	var in account.SignupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, badBody)
		return
	}
	t, err := h.Accounts.Signup(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "User registered successfully", t)
}

func (h *Handler) Login(c *gin.Context) {
	var in account.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, badBody)
		return
	}
	sess, err := h.Accounts.Login(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Login successful", sess)
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var in struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, badBody)
		return
	}
	if err := h.Accounts.ForgotPassword(c.Request.Context(), in.Email); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "If the email is registered, an OTP has been sent", nil)
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var in account.ResetInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, badBody)
		return
	}
	if err := h.Accounts.ResetPassword(c.Request.Context(), in); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Password reset successful", nil)
}
