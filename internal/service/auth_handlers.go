package service

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/dirk.krummacker/contacts-backend/internal/auth"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/model"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/store"
)

// tokenPair is the response body of the login and refresh endpoints.
type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// signup registers a new account and mails it an email confirmation link.
// The account starts unconfirmed with the plain user role; login is refused
// until the link was opened.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/auth/signup --request "POST" --header "Content-Type: application/json" --data '{"username": "erika", "email": "erika@example.com", "password": "s3cret"}'
func (s *Service) signup(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email"    binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.BindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		s.log.Error("hashing password", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	user := model.User{
		Username:     body.Username,
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	err = s.store.CreateUser(c.Request.Context(), &user)
	if errors.Is(err, store.ErrEmailTaken) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": "account already exists"})
		return
	}
	if err != nil {
		s.storeFailure(c, "create user", err)
		return
	}
	s.sendConfirmationMail(user)
	c.IndentedJSON(http.StatusCreated, user)
}

// sendConfirmationMail issues an email-confirm token and hands it to the
// mailer. Delivery problems are logged but do not fail the request; the
// user can ask for a new mail via the request_email endpoint.
func (s *Service) sendConfirmationMail(user model.User) {
	token, err := s.tokens.Generate(user.Id, auth.ScopeEmailConfirm)
	if err != nil {
		s.log.Error("issuing confirmation token", zap.Int64("user", user.Id), zap.Error(err))
		return
	}
	if err := s.mail.SendConfirmation(user.Email, user.Username, token); err != nil {
		s.log.Error("sending confirmation mail", zap.Int64("user", user.Id), zap.Error(err))
	}
}

// login checks the credentials and returns a fresh access/refresh token
// pair. Unknown email, wrong password and unconfirmed accounts are all
// answered with UNAUTHORIZED.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/auth/login --request "POST" --header "Content-Type: application/json" --data '{"email": "erika@example.com", "password": "s3cret"}'
func (s *Service) login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"    binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.BindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	user, err := s.store.UserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(body.Email)))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid email"})
		return
	}
	if err != nil {
		s.storeFailure(c, "find user", err)
		return
	}
	if !user.Confirmed {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "email not confirmed"})
		return
	}
	if !auth.VerifyPassword(user.PasswordHash, body.Password) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid password"})
		return
	}
	s.issueTokenPair(c, user.Id)
}

// refreshToken exchanges a valid refresh token for a new token pair. The
// token must match the one stored for the account, so a pair can only be
// refreshed once and a leaked old token is useless.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/auth/refresh_token -H "Authorization: Bearer $REFRESH_TOKEN"
func (s *Service) refreshToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
		return
	}
	userID, err := s.tokens.Validate(tokenString, auth.ScopeRefresh)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
		return
	}
	user, err := s.store.UserByID(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unknown account"})
		return
	}
	if user.RefreshToken == nil || *user.RefreshToken != tokenString {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
		return
	}
	s.issueTokenPair(c, user.Id)
}

// issueTokenPair creates an access and a refresh token, persists the
// refresh token and writes the pair into the response.
func (s *Service) issueTokenPair(c *gin.Context, userID int64) {
	accessToken, err := s.tokens.Generate(userID, auth.ScopeAccess)
	if err != nil {
		s.log.Error("issuing access token", zap.Int64("user", userID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	refreshToken, err := s.tokens.Generate(userID, auth.ScopeRefresh)
	if err != nil {
		s.log.Error("issuing refresh token", zap.Int64("user", userID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	if err := s.store.UpdateRefreshToken(c.Request.Context(), userID, &refreshToken); err != nil {
		s.storeFailure(c, "store refresh token", err)
		return
	}
	c.IndentedJSON(http.StatusOK, tokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	})
}

// confirmEmail marks the account behind the emailed token as verified.
// Opening the link twice is harmless.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/auth/confirmed_email/$TOKEN
func (s *Service) confirmEmail(c *gin.Context) {
	userID, err := s.tokens.Validate(c.Param("token"), auth.ScopeEmailConfirm)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid or expired token"})
		return
	}
	user, err := s.store.UserByID(c.Request.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "unknown account"})
		return
	}
	if err != nil {
		s.storeFailure(c, "find user", err)
		return
	}
	if user.Confirmed {
		c.IndentedJSON(http.StatusOK, gin.H{"message": "email already confirmed"})
		return
	}
	if err := s.store.ConfirmEmail(c.Request.Context(), userID); err != nil {
		s.storeFailure(c, "confirm email", err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "email confirmed"})
}

// requestEmail mails a new confirmation link. The response is the same
// whether or not the address is registered, so the endpoint cannot be used
// to probe for accounts.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/auth/request_email --request "POST" --header "Content-Type: application/json" --data '{"email": "erika@example.com"}'
func (s *Service) requestEmail(c *gin.Context) {
	var body struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.BindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	user, err := s.store.UserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(body.Email)))
	if err == nil && !user.Confirmed {
		s.sendConfirmationMail(user)
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "check your email for a confirmation link"})
}

// forgotPassword mails a password reset link. Like requestEmail it answers
// identically for known and unknown addresses.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/auth/forgot_password --request "POST" --header "Content-Type: application/json" --data '{"email": "erika@example.com"}'
func (s *Service) forgotPassword(c *gin.Context) {
	var body struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.BindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	user, err := s.store.UserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(body.Email)))
	if err == nil {
		token, tokenErr := s.tokens.Generate(user.Id, auth.ScopePasswordReset)
		if tokenErr != nil {
			s.log.Error("issuing reset token", zap.Int64("user", user.Id), zap.Error(tokenErr))
		} else if mailErr := s.mail.SendPasswordReset(user.Email, user.Username, token); mailErr != nil {
			s.log.Error("sending reset mail", zap.Int64("user", user.Id), zap.Error(mailErr))
		}
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "check your email for a reset link"})
}

// resetPassword sets a new password for the account behind the emailed
// reset token and clears the stored refresh token, forcing a new login
// everywhere.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/auth/reset_password/$TOKEN --request "POST" --header "Content-Type: application/json" --data '{"password": "newS3cret"}'
func (s *Service) resetPassword(c *gin.Context) {
	userID, err := s.tokens.Validate(c.Param("token"), auth.ScopePasswordReset)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid or expired token"})
		return
	}
	var body struct {
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.BindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		s.log.Error("hashing password", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	if err := s.store.UpdatePassword(c.Request.Context(), userID, hash); err != nil {
		s.storeFailure(c, "update password", err)
		return
	}
	if err := s.store.UpdateRefreshToken(c.Request.Context(), userID, nil); err != nil {
		s.storeFailure(c, "clear refresh token", err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "password updated"})
}
