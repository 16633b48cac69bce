package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/queryindex"
	"github.com/nguyentranbao-ct/chat-sync/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/chat-sync/internal/router"
	"github.com/nguyentranbao-ct/chat-sync/internal/usecase"
)

type Controller interface {
	QueryChannels(c echo.Context) error
	NextPage(c echo.Context) error
	GetChannel(c echo.Context) error
	SyncChannel(c echo.Context) error
	SendMessage(c echo.Context) error
	MarkRead(c echo.Context) error
	UpdateMembers(c echo.Context) error
	BanUser(c echo.Context) error
	Health(c echo.Context) error
}

type controller struct {
	channels usecase.ChannelUsecase
	router   *router.Router
}

func NewHandler(channels usecase.ChannelUsecase, rt *router.Router) Controller {
	return &controller{
		channels: channels,
		router:   rt,
	}
}

func (h *controller) QueryChannels(c echo.Context) error {
	var req usecase.QueryChannelsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	page, err := h.channels.QueryChannels(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *controller) NextPage(c echo.Context) error {
	queryID := queryindex.QueryID(c.QueryParam("query_id"))
	if queryID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query_id")
	}
	cursor := models.CID(c.QueryParam("cursor"))
	limit := intQueryParam(c, "limit")

	page, err := h.channels.NextPage(c.Request().Context(), queryID, cursor, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *controller) GetChannel(c echo.Context) error {
	cid, err := models.ParseCID(c.Param("cid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	detail, err := h.channels.GetChannel(c.Request().Context(), cid, intQueryParam(c, "message_limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *controller) SyncChannel(c echo.Context) error {
	cid, err := models.ParseCID(c.Param("cid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ch, err := h.channels.SyncChannel(c.Request().Context(), cid, intQueryParam(c, "message_limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *controller) SendMessage(c echo.Context) error {
	cid, err := models.ParseCID(c.Param("cid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var draft chatapi.MessageDraft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if draft.Text == "" && len(draft.Attachments) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "message has no content")
	}

	msg, err := h.channels.SendMessage(c.Request().Context(), cid, draft)
	if err != nil {
		// the provisional message survives as failed; hand it back so
		// the caller can offer retry
		return c.JSON(http.StatusAccepted, msg)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *controller) MarkRead(c echo.Context) error {
	cid, err := models.ParseCID(c.Param("cid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.channels.MarkRead(c.Request().Context(), cid); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type updateMembersRequest struct {
	AddMembers    []string `json:"add_members"`
	RemoveMembers []string `json:"remove_members"`
}

func (h *controller) UpdateMembers(c echo.Context) error {
	cid, err := models.ParseCID(c.Param("cid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req updateMembersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	if len(req.AddMembers) > 0 {
		if err := h.channels.AddMembers(ctx, cid, req.AddMembers); err != nil {
			return err
		}
	}
	if len(req.RemoveMembers) > 0 {
		if err := h.channels.RemoveMembers(ctx, cid, req.RemoveMembers); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}

type banUserRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	TimeoutMinutes int    `json:"timeout_minutes"`
}

func (h *controller) BanUser(c echo.Context) error {
	cid, err := models.ParseCID(c.Param("cid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req banUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.channels.BanUser(c.Request().Context(), cid, req.UserID, req.TimeoutMinutes); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *controller) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "chat-sync",
		"connected": h.router.Connected(),
	})
}

func intQueryParam(c echo.Context, name string) int {
	v := 0
	echo.QueryParamsBinder(c).Int(name, &v)
	return v
}
