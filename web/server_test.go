package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-web/library"
)

type testApp struct {
	t   *testing.T
	lm  *library.LibraryManager
	srv *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	lm, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lm.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(lm, Options{SessionSecret: []byte("test-secret-0123456789")}, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testApp{t: t, lm: lm, srv: srv}
}

// client returns a browser-like client that keeps cookies but does not follow
// redirects, so tests can inspect them.
func (a *testApp) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(a.t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) account(username string, role library.Role) {
	a.t.Helper()
	_, err := a.lm.Register(context.Background(), library.RegisterInput{
		Username: username, Password: "pw-" + username, Role: role.String(),
		Name: "Name " + username, Email: username + "@example.com",
	})
	require.NoError(a.t, err)
}

func (a *testApp) login(username string) *http.Client {
	a.t.Helper()
	c := a.client()
	res := a.post(c, "/login", url.Values{"username": {username}, "password": {"pw-" + username}})
	require.Equal(a.t, http.StatusSeeOther, res.StatusCode)
	require.Equal(a.t, "/", res.Header.Get("Location"))
	return c
}

func (a *testApp) post(c *http.Client, path string, form url.Values) *http.Response {
	a.t.Helper()
	res, err := c.PostForm(a.srv.URL+path, form)
	require.NoError(a.t, err)
	res.Body.Close()
	return res
}

func (a *testApp) get(c *http.Client, path string, accept string) (*http.Response, string) {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+path, nil)
	require.NoError(a.t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	res, err := c.Do(req)
	require.NoError(a.t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(a.t, err)
	return res, string(body)
}

func TestAnonymousIsSentToLogin(t *testing.T) {
	app := newTestApp(t)
	res, _ := app.get(app.client(), "/books", "")
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))

	res, body := app.get(app.client(), "/login", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `name="username"`)
}

func TestRegisterAndLogin(t *testing.T) {
	app := newTestApp(t)
	c := app.client()

	res := app.post(c, "/register", url.Values{
		"userid": {"alice"}, "password": {"pw-alice"}, "role": {"Member"},
		"name": {"Alice"}, "email": {"alice@example.com"},
	})
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))

	_, body := app.get(c, "/login", "")
	assert.Contains(t, body, "Registration successful")

	res = app.post(c, "/register", url.Values{
		"userid": {"alice"}, "password": {"x"}, "role": {"Member"},
		"name": {"Alice"}, "email": {"alice@example.com"},
	})
	assert.Equal(t, "/register", res.Header.Get("Location"))
	_, body = app.get(c, "/register", "")
	assert.Contains(t, body, "User ID already exists")

	app.login("alice")
}

func TestLibrarianSignupDisabled(t *testing.T) {
	app := newTestApp(t)
	c := app.client()

	res := app.post(c, "/register", url.Values{
		"userid": {"eve"}, "password": {"pw"}, "role": {"Librarian"},
		"name": {"Eve"}, "email": {"eve@example.com"},
	})
	assert.Equal(t, "/register", res.Header.Get("Location"))

	res = app.post(c, "/login", url.Values{"username": {"eve"}, "password": {"pw"}})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestBadLogin(t *testing.T) {
	app := newTestApp(t)
	app.account("alice", library.RoleMember)

	req, err := http.NewRequest(http.MethodPost, app.srv.URL+"/login",
		strings.NewReader(url.Values{"username": {"alice"}, "password": {"nope"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := app.client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, string(body), "Invalid credentials")
}

func TestRoleChecks(t *testing.T) {
	app := newTestApp(t)
	app.account("alice", library.RoleMember)
	app.account("libby", library.RoleLibrarian)
	member := app.login("alice")
	librarian := app.login("libby")

	res, body := app.get(member, "/members", "")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "Access Denied", body)

	res = app.post(member, "/add_book", url.Values{"title": {"T"}, "author": {"A"}})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = app.post(librarian, "/borrow_book/1", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = app.get(librarian, "/members", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestBorrowReserveReturn(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	app.account("alice", library.RoleMember)
	app.account("bob", library.RoleMember)
	librarian := app.login("libby")
	alice := app.login("alice")
	bob := app.login("bob")

	res := app.post(librarian, "/add_book", url.Values{"title": {"Dune"}, "author": {"Frank Herbert"}, "genre": {"SF"}})
	require.Equal(t, "/books", res.Header.Get("Location"))
	_, body := app.get(librarian, "/books", "")
	assert.Contains(t, body, "New book added.")
	assert.Contains(t, body, "Dune")

	res = app.post(bob, "/reserve_book/1", nil)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	_, body = app.get(bob, "/books", "")
	assert.Contains(t, body, "You can borrow it directly")

	app.post(alice, "/borrow_book/1", nil)
	_, body = app.get(alice, "/books", "")
	assert.Contains(t, body, "You have successfully borrowed the book.")

	app.post(bob, "/borrow_book/1", nil)
	_, body = app.get(bob, "/books", "")
	assert.Contains(t, body, "This book is currently not available")

	app.post(bob, "/reserve_book/1", nil)
	_, body = app.get(bob, "/books", "")
	assert.Contains(t, body, "You have reserved the book. Your queue position is 1.")

	app.post(bob, "/reserve_book/1", nil)
	_, body = app.get(bob, "/books", "")
	assert.Contains(t, body, "You have already reserved this book.")

	res, body = app.get(bob, "/my_reservations", acceptJSON)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var reservations []library.Reservation
	require.NoError(t, json.Unmarshal([]byte(body), &reservations))
	require.Len(t, reservations, 1)
	assert.Equal(t, 1, reservations[0].QueuePosition)
	assert.Equal(t, "Dune", reservations[0].Title)

	res, body = app.get(alice, "/my_books", acceptJSON)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var borrowings []library.Borrowing
	require.NoError(t, json.Unmarshal([]byte(body), &borrowings))
	require.Len(t, borrowings, 1)

	res = app.post(librarian, "/return_book/"+itoa(borrowings[0].ID), url.Values{"next": {"/edit_member/2"}})
	assert.Equal(t, "/edit_member/2", res.Header.Get("Location"))
	_, body = app.get(librarian, "/edit_member/2", "")
	assert.Contains(t, body, "Book is now available for Name bob")
	assert.Contains(t, body, "Book returned successfully.")

	app.post(librarian, "/return_book/"+itoa(borrowings[0].ID), nil)
	_, body = app.get(librarian, "/books", "")
	assert.Contains(t, body, "already been returned")

	res, body = app.get(librarian, "/book_reservations/1", acceptJSON)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"queue_position":1`)
}

func TestReturnRejectsForeignRedirect(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	librarian := app.login("libby")

	res := app.post(librarian, "/return_book/7", url.Values{"next": {"//evil.example"}})
	assert.Equal(t, "/books", res.Header.Get("Location"))
}

func TestBadIDIsNotFound(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	librarian := app.login("libby")

	res, _ := app.get(librarian, "/edit_book/abc", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestDeleteMemberWithActiveBorrowing(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	app.account("alice", library.RoleMember)
	librarian := app.login("libby")
	alice := app.login("alice")

	app.post(librarian, "/add_book", url.Values{"title": {"T"}, "author": {"A"}})
	app.post(alice, "/borrow_book/1", nil)

	res := app.post(librarian, "/delete_member/2", nil)
	assert.Equal(t, "/members", res.Header.Get("Location"))
	_, body := app.get(librarian, "/members", "")
	assert.Contains(t, body, "active borrowings")
}

func TestDeleteMember(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	app.account("alice", library.RoleMember)
	librarian := app.login("libby")

	res := app.post(librarian, "/delete_member/2", nil)
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/members", res.Header.Get("Location"))
	_, body := app.get(librarian, "/members", "")
	assert.Contains(t, body, "Member successfully deleted.")
	assert.NotContains(t, body, "Name alice")

	app.post(librarian, "/delete_member/2", nil)
	_, body = app.get(librarian, "/members", "")
	assert.Contains(t, body, "Member not found.")

	res = app.post(app.client(), "/login", url.Values{"username": {"alice"}, "password": {"pw-alice"}})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestDeletedAccountIsLoggedOut(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	app.account("alice", library.RoleMember)
	app.account("bob", library.RoleMember)
	app.account("carol", library.RoleMember)
	librarian := app.login("libby")
	alice := app.login("alice")
	bob := app.login("bob")
	carol := app.login("carol")

	app.post(librarian, "/add_book", url.Values{"title": {"Dune"}, "author": {"Frank Herbert"}})
	app.post(carol, "/borrow_book/1", nil)
	for _, id := range []string{"2", "3"} {
		res := app.post(librarian, "/delete_member/"+id, nil)
		require.Equal(t, "/members", res.Header.Get("Location"))
	}

	res := app.post(alice, "/borrow_book/1", nil)
	assert.Equal(t, "/login", res.Header.Get("Location"))
	_, body := app.get(alice, "/login", "")
	assert.Contains(t, body, "Your account no longer exists.")
	assert.NotContains(t, body, "The requested book does not exist.")
	res, _ = app.get(alice, "/books", "")
	assert.Equal(t, http.StatusFound, res.StatusCode, "session was cleared")

	res = app.post(bob, "/reserve_book/1", nil)
	assert.Equal(t, "/login", res.Header.Get("Location"))
	res, _ = app.get(bob, "/profile", "")
	assert.Equal(t, http.StatusFound, res.StatusCode)

	// A missing book still reads as a missing book.
	app.post(carol, "/reserve_book/99", nil)
	_, body = app.get(carol, "/books", "")
	assert.Contains(t, body, "The requested book does not exist.")
}

func TestDeletedAccountProfile(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	app.account("alice", library.RoleMember)
	librarian := app.login("libby")
	alice := app.login("alice")
	app.post(librarian, "/delete_member/2", nil)

	res, _ := app.get(alice, "/profile", "")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))
}

func TestCancelReservation(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	app.account("alice", library.RoleMember)
	app.account("bob", library.RoleMember)
	librarian := app.login("libby")
	alice := app.login("alice")
	bob := app.login("bob")

	app.post(librarian, "/add_book", url.Values{"title": {"Dune"}, "author": {"Frank Herbert"}})
	app.post(alice, "/borrow_book/1", nil)
	app.post(bob, "/reserve_book/1", nil)

	res := app.post(bob, "/cancel_reservation/1", nil)
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/my_reservations", res.Header.Get("Location"))
	_, body := app.get(bob, "/my_reservations", "")
	assert.Contains(t, body, "Your reservation has been cancelled.")
	assert.Contains(t, body, "You have no reservations.")

	res = app.post(bob, "/cancel_reservation/1", nil)
	assert.Equal(t, "/my_reservations", res.Header.Get("Location"))
	_, body = app.get(bob, "/my_reservations", "")
	assert.Contains(t, body, "You have no reservation for this book.")

	// The cancelled position is not handed out again.
	app.post(bob, "/reserve_book/1", nil)
	_, body = app.get(bob, "/books", "")
	assert.Contains(t, body, "Your queue position is 2.")
}

func TestEditAndDeleteBook(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	librarian := app.login("libby")
	app.post(librarian, "/add_book", url.Values{"title": {"Dune"}, "author": {"Frank Herbert"}, "genre": {"SF"}})

	res := app.post(librarian, "/edit_book/1", url.Values{"title": {" "}, "author": {"Frank Herbert"}})
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/edit_book/1", res.Header.Get("Location"))
	_, body := app.get(librarian, "/edit_book/1", "")
	assert.Contains(t, body, "Title and author are required.")
	assert.Contains(t, body, `value="Dune"`, "book is unchanged")

	res = app.post(librarian, "/edit_book/1", url.Values{"title": {"Dune Messiah"}, "author": {"Frank Herbert"}, "genre": {"SF"}})
	assert.Equal(t, "/books", res.Header.Get("Location"))
	_, body = app.get(librarian, "/books", "")
	assert.Contains(t, body, "Book has been updated.")
	assert.Contains(t, body, "Dune Messiah")

	res = app.post(librarian, "/delete_book/1", nil)
	assert.Equal(t, "/books", res.Header.Get("Location"))
	_, body = app.get(librarian, "/books", "")
	assert.Contains(t, body, "Book has been deleted.")
	assert.NotContains(t, body, "Dune Messiah")

	app.post(librarian, "/delete_book/1", nil)
	_, body = app.get(librarian, "/books", "")
	assert.Contains(t, body, "The requested record does not exist.")

	res = app.post(librarian, "/edit_book/1", url.Values{"title": {"T"}, "author": {"A"}})
	assert.Equal(t, "/books", res.Header.Get("Location"))
}

func TestUpdateProfile(t *testing.T) {
	app := newTestApp(t)
	app.account("alice", library.RoleMember)
	alice := app.login("alice")

	res := app.post(alice, "/profile", url.Values{"name": {"Alice A."}, "email": {"alice@new.example"}})
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/profile", res.Header.Get("Location"))

	res, body := app.get(alice, "/profile", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "Profile updated.")
	assert.Contains(t, body, `value="Alice A."`)
	assert.Contains(t, body, `value="alice@new.example"`)
}

func TestMyBorrowedBooks(t *testing.T) {
	app := newTestApp(t)
	app.account("libby", library.RoleLibrarian)
	app.account("alice", library.RoleMember)
	librarian := app.login("libby")
	alice := app.login("alice")

	app.post(librarian, "/add_book", url.Values{"title": {"Dune"}, "author": {"Frank Herbert"}})
	app.post(librarian, "/add_book", url.Values{"title": {"Emma"}, "author": {"Jane Austen"}})
	app.post(alice, "/borrow_book/1", nil)
	app.post(alice, "/borrow_book/2", nil)
	app.post(librarian, "/return_book/1", nil)

	res, body := app.get(alice, "/my_borrowed_books", acceptJSON)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var history []library.Borrowing
	require.NoError(t, json.Unmarshal([]byte(body), &history))
	require.Len(t, history, 2)
	var returned int
	for _, b := range history {
		if !b.Open() {
			returned++
			assert.Equal(t, "Dune", b.Title)
		}
	}
	assert.Equal(t, 1, returned)

	_, body = app.get(alice, "/my_books", acceptJSON)
	var current []library.Borrowing
	require.NoError(t, json.Unmarshal([]byte(body), &current))
	require.Len(t, current, 1)
	assert.Equal(t, "Emma", current[0].Title)

	_, body = app.get(alice, "/my_borrowed_books", "")
	assert.Contains(t, body, "Not returned")
	assert.Contains(t, body, "Dune")
}

func TestLogoutClearsSession(t *testing.T) {
	app := newTestApp(t)
	app.account("alice", library.RoleMember)
	c := app.login("alice")

	res, _ := app.get(c, "/logout", "")
	assert.Equal(t, "/login", res.Header.Get("Location"))

	res, _ = app.get(c, "/books", "")
	assert.Equal(t, http.StatusFound, res.StatusCode)
}

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := &sessions{secret: []byte("secret"), ttl: time.Minute, now: func() time.Time { return now }}

	e := newEchoContext(t)
	require.NoError(t, s.issue(e.ctx, library.Identity{UserID: 7, Role: library.RoleMember}))
	token := e.cookie(sessionCookie)
	require.NotEmpty(t, token)

	id, err := s.parse(token)
	require.NoError(t, err)
	assert.Equal(t, library.Identity{UserID: 7, Role: library.RoleMember}, id)

	now = now.Add(2 * time.Minute)
	_, err = s.parse(token)
	assert.Error(t, err)

	other := &sessions{secret: []byte("other"), ttl: time.Minute, now: time.Now}
	_, err = other.parse(token)
	assert.Error(t, err)
}

func TestFlashRoundTrip(t *testing.T) {
	messages := []flashMessage{flash(flashInfo, "Book is now available for Bob."), flash(flashSuccess, "Done")}
	value, err := encodeFlashes(messages)
	require.NoError(t, err)
	assert.NotContains(t, value, ";")

	decoded, err := decodeFlashes(value)
	require.NoError(t, err)
	assert.Equal(t, messages, decoded)

	_, err = decodeFlashes("%%%")
	assert.Error(t, err)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Book 3 is currently not available.",
		userMessage(fmt.Errorf("book 3 is currently not available: %w", library.ErrConflict)))
	assert.Equal(t, "Missing name, email.",
		userMessage(fmt.Errorf("missing name, email: %w", library.ErrValidation)))
}

const acceptJSON = echo.MIMEApplicationJSON

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

type echoContext struct {
	ctx echo.Context
	rec *httptest.ResponseRecorder
}

func newEchoContext(t *testing.T) echoContext {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return echoContext{ctx: echo.New().NewContext(req, rec), rec: rec}
}

func (e echoContext) cookie(name string) string {
	for _, c := range e.rec.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
