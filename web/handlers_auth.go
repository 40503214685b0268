package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"library-web/library"
)

func (s *Server) registerForm(c echo.Context) error {
	return render(c, http.StatusOK, "register.html", nil)
}

func (s *Server) register(c echo.Context) error {
	in := library.RegisterInput{
		Username: c.FormValue("userid"),
		Password: c.FormValue("password"),
		Role:     c.FormValue("role"),
		Name:     c.FormValue("name"),
		Email:    c.FormValue("email"),
	}
	if role, err := library.ParseRole(in.Role); err == nil && role == library.RoleLibrarian && !s.opts.AllowLibrarianSignup {
		return redirect(c, "/register", flash(flashDanger, "Librarian accounts are created by an administrator."))
	}

	if _, err := s.lm.Register(c.Request().Context(), in); err != nil {
		if errors.Is(err, library.ErrConflict) {
			return redirect(c, "/register", flash(flashDanger, "User ID already exists. Please choose a different User ID."))
		}
		return s.fail(c, "/register", err)
	}
	return redirect(c, "/login", flash(flashSuccess, "Registration successful. Please log in."))
}

func (s *Server) loginForm(c echo.Context) error {
	return render(c, http.StatusOK, "login.html", nil)
}

func (s *Server) login(c echo.Context) error {
	id, err := s.lm.Login(c.Request().Context(), c.FormValue("username"), c.FormValue("password"))
	if errors.Is(err, library.ErrInvalidCredentials) {
		if wantsJSON(c) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
		}
		return c.Render(http.StatusUnauthorized, "login.html", page{
			Flashes: []flashMessage{flash(flashDanger, "Invalid credentials")},
		})
	}
	if err != nil {
		return err
	}

	if err := s.sessions.issue(c, id); err != nil {
		return err
	}
	return redirect(c, "/")
}

func (s *Server) logout(c echo.Context) error {
	s.sessions.clear(c)
	return redirect(c, "/login")
}

func (s *Server) home(c echo.Context) error {
	return render(c, http.StatusOK, "home.html", identityOf(c))
}

func (s *Server) profile(c echo.Context) error {
	p, err := s.lm.Profile(c.Request().Context(), identityOf(c))
	if err != nil {
		return s.fail(c, "/", err)
	}
	return render(c, http.StatusOK, "profile.html", p)
}

func (s *Server) updateProfile(c echo.Context) error {
	if err := s.lm.UpdateProfile(c.Request().Context(), identityOf(c), c.FormValue("name"), c.FormValue("email")); err != nil {
		return s.fail(c, "/profile", err)
	}
	return redirect(c, "/profile", flash(flashSuccess, "Profile updated."))
}

// pathID parses the :id route parameter; anything but a positive integer is a 404.
func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound)
	}
	return id, nil
}
