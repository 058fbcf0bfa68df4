// Package integrationtest exercises the full stack against a real MySQL
// database whose schema was created with the migration tool. The tests are
// skipped unless DBHOST is set.
package integrationtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"gitlab.com/dirk.krummacker/contacts-backend/internal/auth"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/config"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/model"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/service"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/store"
)

// discardMailer fulfills the mail capability without a running SMTP server.
type discardMailer struct{}

func (discardMailer) SendConfirmation(_, _, _ string) error  { return nil }
func (discardMailer) SendPasswordReset(_, _, _ string) error { return nil }

// setup connects to the database from the environment and builds the
// router. Tests are skipped when no database is configured.
func setup(t *testing.T) (*gin.Engine, *store.Store, *auth.TokenManager) {
	if os.Getenv("DBHOST") == "" {
		t.Skip("DBHOST not set, skipping integration test")
	}
	db, err := store.OpenDatabase(store.DSNFromEnv())
	if err != nil {
		t.Fatalf("opening database: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	st, err := store.New(db)
	if err != nil {
		t.Fatalf("preparing statements: %s", err)
	}
	tokens := auth.NewTokenManager("integration-test-secret", "contacts-backend",
		15*time.Minute, 24*time.Hour, 24*time.Hour)
	svc := service.New(st, tokens, discardMailer{}, zap.NewNop(),
		config.LimitConfig{Requests: 10000, Window: time.Minute})
	gin.SetMode(gin.ReleaseMode)
	return svc.SetupHttpRouter(), st, tokens
}

// createAccount registers a confirmed account with a unique email address
// directly through the store and returns it together with a valid access
// token.
func createAccount(t *testing.T, st *store.Store, tokens *auth.TokenManager, role model.Role) (model.User, string) {
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hashing password: %s", err)
	}
	user := model.User{
		Username:     "integration",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: hash,
		Role:         role,
	}
	ctx := context.Background()
	if err := st.CreateUser(ctx, &user); err != nil {
		t.Fatalf("creating account: %s", err)
	}
	if err := st.ConfirmEmail(ctx, user.Id); err != nil {
		t.Fatalf("confirming account: %s", err)
	}
	token, err := tokens.Generate(user.Id, auth.ScopeAccess)
	if err != nil {
		t.Fatalf("issuing token: %s", err)
	}
	return user, token
}

// run executes an HTTP request against the router.
func run(router *gin.Engine, method, url, token, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request, _ := http.NewRequest(method, url, strings.NewReader(body))
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(recorder, request)
	return recorder
}

// TestContactHappyPath tests a POST, GET, PUT, and DELETE with valid data
// as an admin.
func TestContactHappyPath(t *testing.T) {
	router, st, tokens := setup(t)
	_, token := createAccount(t, st, tokens, model.RoleAdmin)

	// test the endpoint for creating a contact
	postRecorder := run(router, "POST", "/api/contacts", token, `
		{
			"firstname": "Erika",
			"lastname": "Mustermann",
			"email": "erika@example.com",
			"phone": "+49 0815 4711",
			"birthday": "1969-03-02T00:00:00Z"
		}
	`)
	assert.Equal(t, http.StatusCreated, postRecorder.Code)
	var postBody map[string]interface{}
	json.Unmarshal(postRecorder.Body.Bytes(), &postBody)
	assert.Equal(t, "Erika", postBody["firstname"])
	assert.Equal(t, "Mustermann", postBody["lastname"])
	assert.Equal(t, "+49 0815 4711", postBody["phone"])
	idAsFloat64 := postBody["id"]
	idAsString := fmt.Sprintf("%.0f", idAsFloat64)

	// test the endpoint for finding a contact
	getRecorder := run(router, "GET", "/api/contacts/"+idAsString, token, "")
	assert.Equal(t, http.StatusOK, getRecorder.Code)
	var getBody map[string]interface{}
	json.Unmarshal(getRecorder.Body.Bytes(), &getBody)
	assert.Equal(t, idAsFloat64, getBody["id"])
	assert.Equal(t, "Erika", getBody["firstname"])
	assert.Equal(t, "1969-03-02T00:00:00Z", getBody["birthday"])

	// test the endpoint for updating a contact
	putRecorder := run(router, "PUT", "/api/contacts/"+idAsString, token, `{"phone": "81970"}`)
	assert.Equal(t, http.StatusOK, putRecorder.Code)
	var putBody map[string]interface{}
	json.Unmarshal(putRecorder.Body.Bytes(), &putBody)
	assert.Equal(t, idAsFloat64, putBody["id"])
	assert.Equal(t, "Erika", putBody["firstname"])
	assert.Equal(t, "81970", putBody["phone"])

	// test if a subsequent lookup of the contact returns the updated values
	getAgainRecorder := run(router, "GET", "/api/contacts/"+idAsString, token, "")
	assert.Equal(t, http.StatusOK, getAgainRecorder.Code)
	var getAgainBody map[string]interface{}
	json.Unmarshal(getAgainRecorder.Body.Bytes(), &getAgainBody)
	assert.Equal(t, "81970", getAgainBody["phone"])

	// test the endpoint for deleting a contact
	deleteRecorder := run(router, "DELETE", "/api/contacts/"+idAsString, token, "")
	assert.Equal(t, http.StatusOK, deleteRecorder.Code)

	// test if a final lookup of the contact will correctly not find it
	getFinalRecorder := run(router, "GET", "/api/contacts/"+idAsString, token, "")
	assert.Equal(t, http.StatusNotFound, getFinalRecorder.Code)
}

// TestSignupAndLogin registers an account over HTTP, confirms it and logs
// in. The fresh access token must open the contact list.
func TestSignupAndLogin(t *testing.T) {
	router, st, _ := setup(t)
	email := uuid.NewString() + "@example.com"

	signupRecorder := run(router, "POST", "/api/auth/signup", "", fmt.Sprintf(`
		{
			"username": "erika",
			"email": %q,
			"password": "s3cret"
		}
	`, email))
	assert.Equal(t, http.StatusCreated, signupRecorder.Code)
	var signupBody map[string]interface{}
	json.Unmarshal(signupRecorder.Body.Bytes(), &signupBody)
	userID := int64(signupBody["id"].(float64))

	// login is refused until the email is confirmed
	loginBody := fmt.Sprintf(`{"email": %q, "password": "s3cret"}`, email)
	earlyRecorder := run(router, "POST", "/api/auth/login", "", loginBody)
	assert.Equal(t, http.StatusUnauthorized, earlyRecorder.Code)

	// confirm directly; the mailed token is tested at the handler level
	if err := st.ConfirmEmail(context.Background(), userID); err != nil {
		t.Fatalf("confirming account: %s", err)
	}

	loginRecorder := run(router, "POST", "/api/auth/login", "", loginBody)
	assert.Equal(t, http.StatusOK, loginRecorder.Code)
	var pair map[string]interface{}
	json.Unmarshal(loginRecorder.Body.Bytes(), &pair)
	accessToken, _ := pair["access_token"].(string)
	assert.NotEmpty(t, accessToken)

	listRecorder := run(router, "GET", "/api/contacts", accessToken, "")
	assert.Equal(t, http.StatusOK, listRecorder.Code)
	assert.JSONEq(t, "[]", listRecorder.Body.String())
}

// TestSearchEndpoints creates contacts with a pseudo-unique marker and
// checks free-text search, per-field search and the birthday window.
func TestSearchEndpoints(t *testing.T) {
	router, st, tokens := setup(t)
	_, token := createAccount(t, st, tokens, model.RoleUser)
	marker := strings.ReplaceAll(uuid.NewString(), "-", "")

	firstNames := []string{"Anton", "Zacharias", "Michael"}
	for _, firstName := range firstNames {
		contact := fmt.Sprintf(`{
			"firstname": "%s",
			"lastname": "%s",
			"email": "%s@example.com",
			"phone": "+420 555 555 555",
			"birthday": "2003-07-01T00:00:00Z"
		}`, firstName, marker, strings.ToLower(firstName))
		postRecorder := run(router, "POST", "/api/contacts", token, contact)
		assert.Equal(t, http.StatusCreated, postRecorder.Code)
	}

	// free-text search over all four fields
	findRecorder := run(router, "GET", "/api/search/find/"+marker, token, "")
	assert.Equal(t, http.StatusOK, findRecorder.Code)
	var found []model.Contact
	json.Unmarshal(findRecorder.Body.Bytes(), &found)
	assert.Len(t, found, 3)

	// narrowing by first name keeps only one of them
	fieldRecorder := run(router, "GET", "/api/search/field/firstname?q=Zacharias", token, "")
	assert.Equal(t, http.StatusOK, fieldRecorder.Code)
	var narrowed []model.Contact
	json.Unmarshal(fieldRecorder.Body.Bytes(), &narrowed)
	assert.Len(t, narrowed, 1)
	assert.Equal(t, marker, narrowed[0].LastName)

	// every birthday falls within a year-wide window
	shiftRecorder := run(router, "GET", "/api/search/shift/366", token, "")
	assert.Equal(t, http.StatusOK, shiftRecorder.Code)
	var upcoming []model.Contact
	json.Unmarshal(shiftRecorder.Body.Bytes(), &upcoming)
	assert.Len(t, upcoming, 3)

	// birthday is not a searchable field
	badFieldRecorder := run(router, "GET", "/api/search/field/birthday?q=2003", token, "")
	assert.Equal(t, http.StatusBadRequest, badFieldRecorder.Code)
}

// TestOwnerIsolation verifies that one user's contacts are invisible to
// another user, in the list, by id and in search results.
func TestOwnerIsolation(t *testing.T) {
	router, st, tokens := setup(t)
	_, ownerToken := createAccount(t, st, tokens, model.RoleUser)
	_, otherToken := createAccount(t, st, tokens, model.RoleUser)
	marker := strings.ReplaceAll(uuid.NewString(), "-", "")

	postRecorder := run(router, "POST", "/api/contacts", ownerToken, fmt.Sprintf(`{
		"firstname": "Julius",
		"lastname": "%s",
		"email": "julius@example.com",
		"phone": "+39 123 456 789",
		"birthday": "1957-07-01T00:00:00Z"
	}`, marker))
	assert.Equal(t, http.StatusCreated, postRecorder.Code)
	var postBody map[string]interface{}
	json.Unmarshal(postRecorder.Body.Bytes(), &postBody)
	idAsString := fmt.Sprintf("%.0f", postBody["id"])

	// the owner sees the contact
	getRecorder := run(router, "GET", "/api/contacts/"+idAsString, ownerToken, "")
	assert.Equal(t, http.StatusOK, getRecorder.Code)

	// the other user does not, neither by id nor through search
	otherGetRecorder := run(router, "GET", "/api/contacts/"+idAsString, otherToken, "")
	assert.Equal(t, http.StatusNotFound, otherGetRecorder.Code)
	otherFindRecorder := run(router, "GET", "/api/search/find/"+marker, otherToken, "")
	assert.Equal(t, http.StatusOK, otherFindRecorder.Code)
	assert.JSONEq(t, "[]", otherFindRecorder.Body.String())
}

// TestContactsWithoutToken verifies that the contact routes are closed
// without a bearer token.
func TestContactsWithoutToken(t *testing.T) {
	router, _, _ := setup(t)

	recorder := run(router, "GET", "/api/contacts", "", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
