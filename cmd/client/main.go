package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

type Contact struct {
	Id        int64     `json:"id"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Birthday  time.Time `json:"birthday"`
}

type tokenPair struct {
	AccessToken string `json:"access_token"`
}

var (
	baseURL     string
	accessToken string
)

// Usage example on the command line:
// > go run main.go -url http://localhost:8080 -email admin@example.com -password s3cret
//
// The account must be confirmed and needs the admin role because the loop
// also exercises PUT and DELETE.
func main() {
	var email, password string
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the service")
	flag.StringVar(&email, "email", "", "account email")
	flag.StringVar(&password, "password", "", "account password")
	flag.Parse()
	login(email, password)

	fmt.Println()
	fmt.Println("  Elements      POST       PUT       GET    DELETE    SEARCH ")
	fmt.Println("--------------------------------------------------------------")
	sizes := []int{1000, 5000, 10000, 50000}
	jsonBody := []byte(`{
		"firstname": "Marcus",
		"lastname": "Antonius",
		"email": "marcus@example.com",
		"phone": "+39 999 777 555",
		"birthday": "1927-11-09T00:00:00Z"
	}`)
	for _, loops := range sizes {
		firstID, _ := sendPostRequest(bytes.NewReader(jsonBody))
		fmt.Printf("%10d", loops)
		{
			// POST requests
			var duration int64
			for i := 0; i < loops; i++ {
				_, d := sendPostRequest(bytes.NewReader(jsonBody))
				duration += d
			}
			fmt.Printf("%10d", duration/int64(loops*1000))
		}
		{
			// PUT requests
			f := func(id int64) int64 {
				return sendContactRequest(id, http.MethodPut, bytes.NewReader([]byte(`{"phone": "81970"}`)))
			}
			callInLoop(firstID, loops, f)
		}
		{
			// GET requests
			f := func(id int64) int64 {
				return sendContactRequest(id, http.MethodGet, nil)
			}
			callInLoop(firstID, loops, f)
		}
		{
			// DELETE requests
			f := func(id int64) int64 {
				return sendContactRequest(id, http.MethodDelete, nil)
			}
			callInLoop(firstID, loops, f)
		}
		{
			// free-text search over the remaining contacts
			var duration int64
			for i := 0; i < 10; i++ {
				_, d := sendRequest(http.MethodGet, baseURL+"/api/search/find/Antonius", nil)
				duration += d
			}
			fmt.Printf("%10d", duration/int64(10*1000))
		}
		sendContactRequest(firstID, http.MethodDelete, nil)
		fmt.Println()
	}
}

// login exchanges the credentials for an access token used by every
// subsequent request.
func login(email, password string) {
	body := fmt.Sprintf(`{"email": %q, "password": %q}`, email, password)
	resBody, _ := sendRequest(http.MethodPost, baseURL+"/api/auth/login", bytes.NewReader([]byte(body)))
	var pair tokenPair
	if err := json.Unmarshal(resBody, &pair); err != nil || pair.AccessToken == "" {
		fmt.Println("login failed:", string(resBody))
		panic("login failed")
	}
	accessToken = pair.AccessToken
}

func callInLoop(firstID int64, loops int, f func(id int64) int64) {
	ids := createRandomSliceWithIDs(firstID+1, loops)
	var duration int64
	for _, id := range ids {
		d := f(id)
		duration += d
	}
	fmt.Printf("%10d", duration/int64(loops*1000))
}

func createRandomSliceWithIDs(firstID int64, loops int) []int64 {
	ids := make([]int64, 0, loops)
	for i := 0; i < loops; i++ {
		ids = append(ids, firstID+int64(i))
	}
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return ids
}

func sendPostRequest(bodyReader io.Reader) (int64, int64) {
	resBody, duration := sendRequest(http.MethodPost, baseURL+"/api/contacts", bodyReader)
	var contact Contact
	err := json.Unmarshal(resBody, &contact)
	if err != nil {
		fmt.Println("could not unmarshal JSON", err)
		panic(err)
	}
	return contact.Id, duration
}

func sendContactRequest(id int64, method string, bodyReader io.Reader) int64 {
	requestURL := fmt.Sprintf("%s/api/contacts/%d", baseURL, id)
	_, duration := sendRequest(method, requestURL, bodyReader)
	return duration
}

func sendRequest(method string, requestURL string, bodyReader io.Reader) ([]byte, int64) {
	req, err := http.NewRequest(method, requestURL, bodyReader)
	if err != nil {
		fmt.Println("could not create request", err)
		panic(err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	before := time.Now().UnixNano()
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("error making http request", err)
		panic(err)
	}
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		fmt.Println("could not read response body", err)
		panic(err)
	}
	after := time.Now().UnixNano()
	return resBody, after - before
}
