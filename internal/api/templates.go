package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tikcccc/Form-demo/internal/engine"
	"github.com/tikcccc/Form-demo/internal/ir"
)

type createTemplateRequest struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
}

// templatePatchRequest mirrors engine.TemplatePatch; absent keys are left
// unchanged.
type templatePatchRequest struct {
	Name              *string      `json:"name"`
	Code              *string      `json:"code"`
	Schema            *[]ir.Field  `json:"schema"`
	Layout            *ir.Layout   `json:"layout"`
	Actions           *[]ir.Action `json:"actions"`
	ActionFlowEnabled *bool        `json:"action_flow_enabled"`
	InitiatorRoleIDs  *[]string    `json:"initiator_role_ids"`
	RevisionActionIDs *[]string    `json:"revision_action_ids"`
	CloseOnOpen       *bool        `json:"close_on_open"`
	Published         *bool        `json:"published"`
}

func (r templatePatchRequest) patch() engine.TemplatePatch {
	return engine.TemplatePatch{
		Name:              r.Name,
		Code:              r.Code,
		Schema:            r.Schema,
		Layout:            r.Layout,
		Actions:           r.Actions,
		ActionFlowEnabled: r.ActionFlowEnabled,
		InitiatorRoleIDs:  r.InitiatorRoleIDs,
		RevisionActionIDs: r.RevisionActionIDs,
		CloseOnOpen:       r.CloseOnOpen,
		Published:         r.Published,
	}
}

type importResponse struct {
	Results []engine.ImportResult `json:"results"`
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return nil
}

func (s *Server) listTemplates(c echo.Context) error {
	ts, err := s.eng.ListTemplates(c.Request().Context(), roleOf(c))
	if err != nil {
		return err
	}
	if ts == nil {
		ts = []ir.Template{}
	}
	return c.JSON(http.StatusOK, ts)
}

func (s *Server) getTemplate(c echo.Context) error {
	t, err := s.eng.GetTemplate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if !t.Published && !s.eng.Directory().IsAdmin(roleOf(c)) {
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) createTemplate(c echo.Context) error {
	var req createTemplateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	t, err := s.eng.CreateTemplate(c.Request().Context(), roleOf(c), req.SourceID, req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) duplicateTemplate(c echo.Context) error {
	t, err := s.eng.DuplicateTemplate(c.Request().Context(), roleOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTemplate(c echo.Context) error {
	var req templatePatchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	t, err := s.eng.UpdateTemplate(c.Request().Context(), roleOf(c), c.Param("id"), req.patch())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) publishTemplate(c echo.Context) error {
	t, err := s.eng.PublishTemplate(c.Request().Context(), roleOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTemplate(c echo.Context) error {
	if err := s.eng.DeleteTemplate(c.Request().Context(), roleOf(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) importTemplates(c echo.Context) error {
	var ts []ir.Template
	if err := bind(c, &ts); err != nil {
		return err
	}
	results, err := s.eng.ImportTemplates(c.Request().Context(), roleOf(c), ts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, importResponse{Results: results})
}
