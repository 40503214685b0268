package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"library-web/library"
)

func (s *Server) members(c echo.Context) error {
	members, err := s.lm.Members(c.Request().Context(), identityOf(c))
	if err != nil {
		return s.fail(c, "/", err)
	}
	return render(c, http.StatusOK, "members.html", members)
}

func (s *Server) editMember(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	member, err := s.lm.MemberDetail(c.Request().Context(), identityOf(c), id)
	if errors.Is(err, library.ErrNotFound) {
		return redirect(c, "/members", flash(flashDanger, "Member not found."))
	}
	if err != nil {
		return s.fail(c, "/members", err)
	}
	return render(c, http.StatusOK, "edit_member.html", member)
}

func (s *Server) deleteMember(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	err = s.lm.DeleteMember(c.Request().Context(), identityOf(c), id)
	switch {
	case err == nil:
		return redirect(c, "/members", flash(flashSuccess, "Member successfully deleted."))
	case errors.Is(err, library.ErrNotFound):
		return redirect(c, "/members", flash(flashDanger, "Member not found."))
	case errors.Is(err, library.ErrConflict):
		return redirect(c, "/members", flash(flashDanger, "Member cannot be deleted because they have active borrowings."))
	}
	return s.fail(c, "/members", err)
}
