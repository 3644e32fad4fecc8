package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/platemetrics/analytics_backend/config"
	"github.com/platemetrics/analytics_backend/models/reports"
	"github.com/platemetrics/analytics_backend/utils"
	"github.com/sirupsen/logrus"
)

// reportRange resolves the report window from the query string: either an
// explicit from_date/to_date pair or a dashboard preset via filter_type
// (last7days, last30days, last90days, thisMonth, previousMonth, thisQuarter,
// previousQuarter). Writes the error response itself on failure.
func reportRange(c *gin.Context) (string, string, bool) {
	if filterType := strings.TrimSpace(c.Query("filter_type")); filterType != "" {
		start, end, err := utils.GetStartAndEndDateWithFilterType(filterType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return "", "", false
		}
		return start.Format("2006-01-02"), end.Format("2006-01-02"), true
	}

	fromDate := strings.TrimSpace(c.Query("from_date"))
	toDate := strings.TrimSpace(c.Query("to_date"))
	if fromDate == "" || toDate == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from_date and to_date are required"})
		return "", "", false
	}
	return fromDate, toDate, true
}

func reportLocationId(c *gin.Context) (*int, bool) {
	raw := strings.TrimSpace(c.Query("location_id"))
	if raw == "" {
		return nil, true
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location_id must be a positive integer"})
		return nil, false
	}
	return &id, true
}

func requireOrg(c *gin.Context) bool {
	if orgId, ok := utils.GetOrgIdFromContext(c.Request.Context()); !ok || orgId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

func dailySalesReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		fromDate, toDate, ok := reportRange(c)
		if !ok {
			return
		}
		locationId, ok := reportLocationId(c)
		if !ok {
			return
		}

		records, err := reports.GetDailySalesReport(c.Request.Context(), locationId, fromDate, toDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
	}
}

func daypartSalesReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		fromDate, toDate, ok := reportRange(c)
		if !ok {
			return
		}
		locationId, ok := reportLocationId(c)
		if !ok {
			return
		}

		records, err := reports.GetDaypartSalesReport(c.Request.Context(), locationId, fromDate, toDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
	}
}

func exportDailySalesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		fromDate, toDate, ok := reportRange(c)
		if !ok {
			return
		}
		locationId, ok := reportLocationId(c)
		if !ok {
			return
		}

		start := time.Now()
		signed, err := reports.ExportDailySalesXlsx(c.Request.Context(), locationId, fromDate, toDate)
		if err != nil {
			config.LogError(config.GetLogger(), "reports", "exportDailySalesHandler", "export daily sales", fromDate+".."+toDate, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logExport("daily_sales", signed.ObjectKey, start)
		c.JSON(http.StatusOK, gin.H{"data": signed})
	}
}

func exportDaypartSalesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireOrg(c) {
			return
		}
		fromDate, toDate, ok := reportRange(c)
		if !ok {
			return
		}
		locationId, ok := reportLocationId(c)
		if !ok {
			return
		}

		start := time.Now()
		signed, err := reports.ExportDaypartSalesXlsx(c.Request.Context(), locationId, fromDate, toDate)
		if err != nil {
			config.LogError(config.GetLogger(), "reports", "exportDaypartSalesHandler", "export daypart sales", fromDate+".."+toDate, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logExport("daypart_sales", signed.ObjectKey, start)
		c.JSON(http.StatusOK, gin.H{"data": signed})
	}
}

func logExport(report string, objectKey string, start time.Time) {
	config.GetLogger().WithFields(logrus.Fields{
		"report":      report,
		"object_key":  objectKey,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("[report.export]")
}
