package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tikcccc/Form-demo/internal/engine"
	"github.com/tikcccc/Form-demo/internal/ir"
)

type createInstanceRequest struct {
	TemplateID   string         `json:"template_id"`
	Title        string         `json:"title"`
	CommonValues map[string]any `json:"common_values"`
}

type formPatchRequest struct {
	Values   map[string]any `json:"values"`
	ActionID string         `json:"action_id"`
}

type attachmentRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Size    int64  `json:"size"`
	Status  string `json:"status"`
}

type attachmentStatusRequest struct {
	Status string `json:"status"`
}

type sendRequest struct {
	ActionID          string   `json:"action_id"`
	ToGroups          []string `json:"to_groups"`
	Message           string   `json:"message"`
	ExpectedStepCount *int     `json:"expected_step_count"`
}

type delegateRequest struct {
	ToGroup           string `json:"to_group"`
	Note              string `json:"note"`
	ExpectedStepCount *int   `json:"expected_step_count"`
}

type attachmentResponse struct {
	AttachmentID string               `json:"attachment_id"`
	View         *engine.InstanceView `json:"view"`
}

func etag(inst *ir.Instance) (string, error) {
	h, err := ir.InstanceHash(inst)
	if err != nil {
		return "", fmt.Errorf("hash instance %s: %w", inst.ID, err)
	}
	return strconv.Quote(h), nil
}

// render writes the role's view of inst with its ETag.
func (s *Server) render(c echo.Context, status int, inst *ir.Instance) error {
	view, err := s.view(c, inst)
	if err != nil {
		return err
	}
	return c.JSON(status, view)
}

func (s *Server) view(c echo.Context, inst *ir.Instance) (*engine.InstanceView, error) {
	t, err := s.eng.GetTemplate(c.Request().Context(), inst.TemplateID)
	if err != nil {
		return nil, err
	}
	tag, err := etag(inst)
	if err != nil {
		return nil, err
	}
	c.Response().Header().Set("ETag", tag)
	return s.eng.View(t, roleOf(c), inst), nil
}

// commandContext carries an If-Match tag into the engine, which compares it
// with the stored snapshot under the instance lock.
func commandContext(c echo.Context) context.Context {
	ctx := c.Request().Context()
	want := c.Request().Header.Get("If-Match")
	if want == "" || want == "*" {
		return ctx
	}
	if h, err := strconv.Unquote(want); err == nil {
		want = h
	}
	return engine.WithExpectedHash(ctx, want)
}

// commandError reports a Conflict under If-Match as 412.
func commandError(c echo.Context, err error) error {
	if engine.IsConflict(err) {
		if _, ok := engine.ExpectedHash(commandContext(c)); ok {
			return echo.NewHTTPError(http.StatusPreconditionFailed, err.Error())
		}
	}
	return err
}

func (s *Server) listInstances(c echo.Context) error {
	filter := engine.ListFilter{
		TemplateID: c.QueryParam("template_id"),
		Status:     ir.Status(c.QueryParam("status")),
	}
	if v := c.QueryParam("inbox"); v != "" {
		inbox, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "inbox must be a boolean")
		}
		filter.Inbox = inbox
	}
	insts, err := s.eng.ListInstances(c.Request().Context(), roleOf(c), filter)
	if err != nil {
		return err
	}
	views := make([]*engine.InstanceView, 0, len(insts))
	templates := map[string]*ir.Template{}
	for i := range insts {
		inst := &insts[i]
		t, ok := templates[inst.TemplateID]
		if !ok {
			t, err = s.eng.GetTemplate(c.Request().Context(), inst.TemplateID)
			if err != nil {
				return err
			}
			templates[inst.TemplateID] = t
		}
		views = append(views, s.eng.View(t, roleOf(c), inst))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) createInstance(c echo.Context) error {
	var req createInstanceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, err := s.eng.CreateInstance(c.Request().Context(), roleOf(c), engine.CreateRequest{
		TemplateID:   req.TemplateID,
		Title:        req.Title,
		CommonValues: req.CommonValues,
	})
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/instances/"+inst.ID)
	return s.render(c, http.StatusCreated, inst)
}

func (s *Server) getInstance(c echo.Context) error {
	inst, _, err := s.eng.GetInstance(c.Request().Context(), roleOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, inst)
}

func (s *Server) deleteInstance(c echo.Context) error {
	if err := s.eng.DeleteInstance(c.Request().Context(), roleOf(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) updateForm(c echo.Context) error {
	var req formPatchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, err := s.eng.UpdateFormData(commandContext(c), roleOf(c), c.Param("id"), engine.FormPatch{
		Values:   req.Values,
		ActionID: req.ActionID,
	})
	if err != nil {
		return commandError(c, err)
	}
	return s.render(c, http.StatusOK, inst)
}

func (s *Server) addAttachment(c echo.Context) error {
	var req attachmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, id, err := s.eng.AddAttachment(commandContext(c), roleOf(c), c.Param("id"), engine.AttachmentInput{
		Name:    req.Name,
		Type:    req.Type,
		Version: req.Version,
		Size:    req.Size,
		Status:  req.Status,
	})
	if err != nil {
		return commandError(c, err)
	}
	view, err := s.view(c, inst)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, attachmentResponse{AttachmentID: id, View: view})
}

func (s *Server) removeAttachment(c echo.Context) error {
	inst, err := s.eng.RemoveAttachment(commandContext(c), roleOf(c), c.Param("id"), c.Param("attachment"))
	if err != nil {
		return commandError(c, err)
	}
	return s.render(c, http.StatusOK, inst)
}

func (s *Server) updateAttachmentStatus(c echo.Context) error {
	var req attachmentStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, err := s.eng.UpdateAttachmentStatus(commandContext(c), roleOf(c), c.Param("id"), c.Param("attachment"), req.Status)
	if err != nil {
		return commandError(c, err)
	}
	return s.render(c, http.StatusOK, inst)
}

func (s *Server) sendAction(c echo.Context) error {
	var req sendRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, err := s.eng.SendAction(commandContext(c), roleOf(c), c.Param("id"), engine.SendRequest{
		ActionID:          req.ActionID,
		ToGroups:          req.ToGroups,
		Message:           req.Message,
		ExpectedStepCount: req.ExpectedStepCount,
	})
	if err != nil {
		return commandError(c, err)
	}
	return s.render(c, http.StatusOK, inst)
}

func (s *Server) delegateStep(c echo.Context) error {
	var req delegateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	inst, err := s.eng.DelegateStep(commandContext(c), roleOf(c), c.Param("id"), engine.DelegateRequest{
		ToGroup:           req.ToGroup,
		Note:              req.Note,
		ExpectedStepCount: req.ExpectedStepCount,
	})
	if err != nil {
		return commandError(c, err)
	}
	return s.render(c, http.StatusOK, inst)
}

func (s *Server) markOpened(c echo.Context) error {
	inst, err := s.eng.MarkOpened(c.Request().Context(), roleOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, inst)
}
