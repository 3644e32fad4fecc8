package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/platemetrics/analytics_backend/models"
	"github.com/platemetrics/analytics_backend/utils"
)

// Location management for the org's restaurants. The sync and report
// surfaces only reference locations; these endpoints own the rows.

func locationIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
		return 0, false
	}
	return id, true
}

func listLocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		ctx := c.Request.Context()

		if name := strings.TrimSpace(c.Query("name")); name != "" {
			records, err := models.GetLocations(ctx, &name)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"data": records})
			return
		}

		// Unfiltered list is what the dashboard's location picker polls;
		// serve the cached slim rows.
		records, err := models.ListAllResource[models.Location, models.AllLocation](ctx, "name")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
	}
}

func createLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		var input models.NewLocation
		if err := c.ShouldBindJSON(&input); err != nil {
			if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		location, err := models.CreateLocation(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": location})
	}
}

func getLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		id, ok := locationIdParam(c)
		if !ok {
			return
		}
		location, err := models.GetLocation(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": location})
	}
}

func updateLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		id, ok := locationIdParam(c)
		if !ok {
			return
		}
		var input models.NewLocation
		if err := c.ShouldBindJSON(&input); err != nil {
			if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		location, err := models.UpdateLocation(c.Request.Context(), id, &input)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": location})
	}
}

type toggleLocationRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func toggleLocationActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		id, ok := locationIdParam(c)
		if !ok {
			return
		}
		var req toggleLocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		location, err := models.ToggleActiveLocation(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": location})
	}
}
