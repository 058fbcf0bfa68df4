// Package service implements the REST API on top of the store, the search
// engines and the auth facilities. Routing and JSON handling follow gin
// conventions; every contact route is scoped to the authenticated user.
package service

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/dirk.krummacker/contacts-backend/internal/auth"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/config"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/model"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/search"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/store"
)

// defaultPageLimit and maxPageLimit bound the contact list page size.
const (
	defaultPageLimit = 10
	maxPageLimit     = 500
)

// Sender is the mail delivery capability the handlers need. Production code
// passes *mailer.Mailer; tests substitute a recorder.
type Sender interface {
	SendConfirmation(to, username, token string) error
	SendPasswordReset(to, username, token string) error
}

// Service wires the HTTP handlers to their collaborators.
type Service struct {
	store   *store.Store
	search  *search.Engine
	tokens  *auth.TokenManager
	mail    Sender
	log     *zap.Logger
	limiter *visitorLimiter
}

// New creates the service. The search engine reads through the same store
// that the CRUD handlers write to.
func New(st *store.Store, tokens *auth.TokenManager, mail Sender, log *zap.Logger, limit config.LimitConfig) *Service {
	return &Service{
		store:   st,
		search:  search.NewEngine(st),
		tokens:  tokens,
		mail:    mail,
		log:     log,
		limiter: newVisitorLimiter(limit.Requests, limit.Window),
	}
}

// SetupHttpRouter initializes the REST API router and registers all
// endpoints. Contact and search routes require a bearer access token; list
// and free-text search are additionally rate limited.
func (s *Service) SetupHttpRouter() *gin.Engine {
	var router *gin.Engine
	if strings.EqualFold(os.Getenv("GIN_LOGGING"), "off") {
		fmt.Println("Turning off HTTP request logging.")
		router = gin.New()
		router.Use(gin.Recovery())
	} else {
		router = gin.Default()
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/api/auth")
	authGroup.POST("/signup", s.signup)
	authGroup.POST("/login", s.login)
	authGroup.GET("/refresh_token", s.refreshToken)
	authGroup.GET("/confirmed_email/:token", s.confirmEmail)
	authGroup.POST("/request_email", s.requestEmail)
	authGroup.POST("/forgot_password", s.forgotPassword)
	authGroup.POST("/reset_password/:token", s.resetPassword)

	contacts := router.Group("/api/contacts", s.authenticated)
	contacts.GET("", s.rateLimited, s.listContacts)
	contacts.POST("", s.createContact)
	contacts.GET("/:id", s.findContactByID)
	contacts.PUT("/:id", s.requireRole(model.RoleModerator, model.RoleAdmin), s.updateContactByID)
	contacts.DELETE("/:id", s.requireRole(model.RoleAdmin), s.deleteContactByID)
	contacts.PATCH("/:id/favorite", s.requireRole(model.RoleModerator, model.RoleAdmin), s.favoriteContactByID)

	searchGroup := router.Group("/api/search", s.authenticated)
	searchGroup.GET("/shift/:shift", s.birthdayWindow)
	searchGroup.GET("/find/:info", s.rateLimited, s.findByPartialInfo)
	searchGroup.GET("/field/:field", s.findByField)

	return router
}

// storeFailure logs a store-level failure and answers with the INTERNAL
// SERVER ERROR status code. Store errors are propagated, never retried here.
func (s *Service) storeFailure(c *gin.Context, op string, err error) {
	s.log.Error("store failure", zap.String("operation", op), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
}

// listContacts responds with one page of the authenticated user's contacts
// as JSON. The URL parameter 'limit' caps the page size at 500 with a
// default of 10; 'offset' skips items from the beginning of the id-ordered
// list. An empty page is a valid result, not an error.
//
// Example REST API call:
//
//	> curl "http://localhost:8080/api/contacts?limit=20&offset=60" -H "Authorization: Bearer $TOKEN"
func (s *Service) listContacts(c *gin.Context) {
	user := currentUser(c)
	limit, offset, ok := parseLimitAndOffset(c)
	if !ok {
		return
	}
	contacts, err := s.store.ContactsPage(c.Request.Context(), user.Id, limit, offset)
	if err != nil {
		s.storeFailure(c, "list contacts", err)
		return
	}
	c.IndentedJSON(http.StatusOK, contacts)
}

// parseLimitAndOffset inspects the URL parameters and determines values for
// limit and offset of the result set.
func parseLimitAndOffset(c *gin.Context) (limit int, offset int, success bool) {
	limit = defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid limit parameter"})
			return 0, 0, false
		}
		if parsed > maxPageLimit {
			parsed = maxPageLimit
		}
		limit = parsed
	}
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid offset parameter"})
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}

// createContact inserts the contact specified in the request's JSON into the
// database, owned by the authenticated user. It responds with the full
// contact data including the newly assigned id.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/contacts --request "POST" --header "Authorization: Bearer $TOKEN" --header "Content-Type: application/json" --data '{"firstname": "Hans", "lastname": "Wurst", "email": "hans@example.com", "phone": "0815", "birthday": "1969-03-02T00:00:00Z"}'
func (s *Service) createContact(c *gin.Context) {
	user := currentUser(c)
	var newContact model.Contact
	if err := c.BindJSON(&newContact); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	newContact.Id = 0
	newContact.OwnerId = user.Id
	if err := s.store.CreateContact(c.Request.Context(), &newContact); err != nil {
		s.storeFailure(c, "create contact", err)
		return
	}
	c.IndentedJSON(http.StatusCreated, newContact)
}

// findContactByID locates the authenticated user's contact whose ID value
// matches the id parameter of the request URL, then returns that contact as
// a response. Contacts of other users are invisible and yield NOT FOUND.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/contacts/56 -H "Authorization: Bearer $TOKEN"
func (s *Service) findContactByID(c *gin.Context) {
	user := currentUser(c)
	id, ok := parseID(c)
	if !ok {
		return
	}
	contact, err := s.store.ContactByID(c.Request.Context(), user.Id, id)
	if errors.Is(err, store.ErrNotFound) {
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": "contact not found"})
		return
	}
	if err != nil {
		s.storeFailure(c, "find contact", err)
		return
	}
	c.IndentedJSON(http.StatusOK, contact)
}

// updateContactByID updates the contact whose ID value matches the id
// parameter of the request URL, applies the values specified in the JSON
// (and only those), and finally responds with the new version of the
// contact. Restricted to moderators and admins.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/contacts/56 --request "PUT" --header "Authorization: Bearer $TOKEN" --header "Content-Type: application/json" --data '{"phone": "81970"}'
func (s *Service) updateContactByID(c *gin.Context) {
	user := currentUser(c)
	id, ok := parseID(c)
	if !ok {
		return
	}
	var patch model.ContactPatch
	if err := c.BindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	if patch == (model.ContactPatch{}) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "no values to be updated"})
		return
	}
	err := s.store.UpdateContact(c.Request.Context(), user.Id, id, patch)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "contact not found"})
		return
	}
	if err != nil {
		s.storeFailure(c, "update contact", err)
		return
	}

	// In the HTTP response, return the full contact after the update.
	contact, err := s.store.ContactByID(c.Request.Context(), user.Id, id)
	if err != nil {
		s.storeFailure(c, "reload contact", err)
		return
	}
	c.IndentedJSON(http.StatusOK, contact)
}

// deleteContactByID deletes the contact whose ID value matches the id
// parameter of the request URL from the database. Restricted to admins.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/contacts/56 --request "DELETE" -H "Authorization: Bearer $TOKEN"
func (s *Service) deleteContactByID(c *gin.Context) {
	user := currentUser(c)
	id, ok := parseID(c)
	if !ok {
		return
	}
	err := s.store.DeleteContact(c.Request.Context(), user.Id, id)
	if errors.Is(err, store.ErrNotFound) {
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": "contact not found"})
		return
	}
	if err != nil {
		s.storeFailure(c, "delete contact", err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "contact deleted"})
}

// favoriteContactByID sets or clears the favorite flag of a contact.
// Restricted to moderators and admins.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/contacts/56/favorite --request "PATCH" --header "Authorization: Bearer $TOKEN" --header "Content-Type: application/json" --data '{"is_favorite": true}'
func (s *Service) favoriteContactByID(c *gin.Context) {
	user := currentUser(c)
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		IsFavorite *bool `json:"is_favorite"`
	}
	if err := c.BindJSON(&body); err != nil || body.IsFavorite == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	err := s.store.SetFavorite(c.Request.Context(), user.Id, id, *body.IsFavorite)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "contact not found"})
		return
	}
	if err != nil {
		s.storeFailure(c, "set favorite", err)
		return
	}
	contact, err := s.store.ContactByID(c.Request.Context(), user.Id, id)
	if err != nil {
		s.storeFailure(c, "reload contact", err)
		return
	}
	c.IndentedJSON(http.StatusOK, contact)
}

// parseID reads the numeric id parameter from the request URL. A
// non-numeric id cannot match any contact, so it is answered with NOT FOUND
// without reaching out to the database.
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "invalid id parameter"})
		return 0, false
	}
	return id, true
}

// birthdayWindow responds with the authenticated user's contacts whose next
// birthday falls within the given number of days from today, both ends
// inclusive. A contact with its birthday today is part of the result even
// for shift 0.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/search/shift/7 -H "Authorization: Bearer $TOKEN"
func (s *Service) birthdayWindow(c *gin.Context) {
	user := currentUser(c)
	shift, err := strconv.Atoi(c.Param("shift"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid shift parameter"})
		return
	}
	contacts, err := s.search.BirthdayWindow(c.Request.Context(), user.Id, shift)
	if err != nil {
		s.storeFailure(c, "birthday window", err)
		return
	}
	c.IndentedJSON(http.StatusOK, contacts)
}

// findByPartialInfo responds with the authenticated user's contacts where
// the given text appears in the first name, last name, email or phone. An
// empty result list means no matches; it is returned with status OK.
//
// Example REST API call:
//
//	> curl http://localhost:8080/api/search/find/Krummacker -H "Authorization: Bearer $TOKEN"
func (s *Service) findByPartialInfo(c *gin.Context) {
	user := currentUser(c)
	contacts, err := s.search.SearchByPartialInfo(c.Request.Context(), user.Id, c.Param("info"))
	if err != nil {
		s.storeFailure(c, "search by partial info", err)
		return
	}
	c.IndentedJSON(http.StatusOK, contacts)
}

// findByField responds with the authenticated user's contacts whose given
// field contains the value of the 'q' URL parameter. Valid fields are
// 'firstname', 'lastname', 'email', and 'phone'; anything else is answered
// with BAD REQUEST.
//
// Example REST API call:
//
//	> curl "http://localhost:8080/api/search/field/lastname?q=Krumm" -H "Authorization: Bearer $TOKEN"
func (s *Service) findByField(c *gin.Context) {
	user := currentUser(c)
	contacts, err := s.search.SearchByField(c.Request.Context(), user.Id, c.Param("field"), c.Query("q"))
	var unknownField *search.UnknownFieldError
	if errors.As(err, &unknownField) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": unknownField.Error()})
		return
	}
	if err != nil {
		s.storeFailure(c, "search by field", err)
		return
	}
	c.IndentedJSON(http.StatusOK, contacts)
}
