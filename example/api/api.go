// Package api implements the tenant facing REST API.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hl8/datalayer/db/scope"
	"github.com/hl8/datalayer/migrations"
	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/tenant"

	"github.com/hl8/datalayer/example/notes"
)

var once sync.Once

type Options struct {
	Store      *notes.Store
	Tenants    *tenant.Service
	Migrations *migrations.Runner
}

type API struct {
	router *gin.Engine
	opts   Options
}

func New(ctx context.Context, opts Options) *API {
	once.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	r := gin.New()
	r.Use(traceRequests(o11y.FromContext(ctx)))
	r.UseRawPath = true

	a := &API{
		router: r,
		opts:   opts,
	}

	n := r.Group("/api/notes", tenantFromHeader())
	n.POST("", a.addNote)
	n.GET("", a.listNotes)
	n.GET("/:id", a.getNote)
	n.DELETE("/:id", a.deleteNote)

	t := r.Group("/api/tenants")
	t.POST("/:id", a.provisionTenant)
	t.DELETE("/:id", a.dropTenant)

	return a
}

func (a *API) Handler() http.Handler {
	return a.router
}

// tenantFromHeader binds the caller's tenant into the request scope. In a
// real deployment the tenant would come from the authenticated identity, not
// a bare header.
func tenantFromHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Tenant-ID")
		if err := tenant.ValidateID(id); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-Tenant-ID header"})
			return
		}
		c.Request = c.Request.WithContext(scope.WithTenant(c.Request.Context(), id))
		c.Next()
	}
}

func traceRequests(provider o11y.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := o11y.WithProvider(c.Request.Context(), provider)
		ctx, span := o11y.StartSpan(ctx, c.Request.Method+" "+c.FullPath())
		defer span.End()

		span.AddRawField("http.method", c.Request.Method)
		span.AddRawField("http.route", c.FullPath())

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.AddRawField("http.status_code", c.Writer.Status())
	}
}

type noteRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body"`
}

func (a *API) addNote(c *gin.Context) {
	var req noteRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := a.opts.Store.Add(c.Request.Context(), notes.ToAdd{
		Title: req.Title,
		Body:  req.Body,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (a *API) listNotes(c *gin.Context) {
	list, err := a.opts.Store.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *API) getNote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return
	}

	note, err := a.opts.Store.ByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (a *API) deleteNote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return
	}

	if err := a.opts.Store.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// provisionTenant creates the tenant's database and brings its schema up to
// date with the shared migration set.
func (a *API) provisionTenant(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := a.opts.Tenants.CreateDatabase(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	applied, err := a.opts.Migrations.UpTenant(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tenant": id, "migrations_applied": len(applied)})
}

func (a *API) dropTenant(c *gin.Context) {
	if err := a.opts.Tenants.DropDatabase(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, tenant.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tenant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
