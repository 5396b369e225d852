package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/ebookqa/internal/ingest"
	"github.com/mohammad-safakhou/ebookqa/internal/runtime"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
)

func (s *Server) registerDocs(g *echo.Group) {
	g.POST("", s.uploadDoc)
	g.GET("", s.listDocs)
	g.GET("/:id", s.getDoc)
	g.GET("/:id/status", s.docStatus)
	g.DELETE("/:id", s.deleteDoc)
}

func docIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	return id, nil
}

func (s *Server) uploadDoc(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	// Read one byte past the limit so oversized uploads are detected without
	// buffering arbitrarily large bodies.
	limit := s.Cfg.Ingest.MaxFileSize
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	doc, err := s.Ingest.Upload(c.Request().Context(), runtime.UserID(c), fh.Filename, data)
	switch {
	case errors.Is(err, ingest.ErrEmptyFile), errors.Is(err, ingest.ErrNotPDF):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":       "document already uploaded",
			"document_id": doc.ID,
		})
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, UploadResponse{DocumentID: doc.ID, Status: doc.Status})
}

func (s *Server) listDocs(c echo.Context) error {
	docs, err := s.Store.ListDocuments(c.Request().Context(), runtime.UserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (s *Server) getDoc(c echo.Context) error {
	id, err := docIDParam(c)
	if err != nil {
		return err
	}
	doc, err := s.Store.GetDocument(c.Request().Context(), id, runtime.UserID(c))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) docStatus(c echo.Context) error {
	id, err := docIDParam(c)
	if err != nil {
		return err
	}
	doc, err := s.Store.GetDocument(c.Request().Context(), id, runtime.UserID(c))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Status: doc.Status, ChunkCount: doc.ChunkCount, PageCount: doc.PageCount, Error: doc.Error,
	})
}

// deleteDoc removes the document everywhere. Vector and blob deletion are
// best effort; a dangling chunk or blob must never block removal of the row
// the user can see.
func (s *Server) deleteDoc(c echo.Context) error {
	id, err := docIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID := runtime.UserID(c)

	doc, err := s.Store.GetDocument(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := s.Vectors.DeleteDoc(ctx, userID, doc.ID); err != nil {
		s.Logger.Printf("delete doc %d: vector cleanup failed: %v", doc.ID, err)
	}
	if _, err := s.Blobs.Delete(ctx, doc.BlobKey); err != nil {
		s.Logger.Printf("delete doc %d: blob cleanup failed: %v", doc.ID, err)
	}
	if err := s.Store.DeleteDocument(ctx, doc.ID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
