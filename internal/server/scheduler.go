package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/milkbill/internal/scheduler"
)

const schedulerStopTimeout = 30 * time.Second

func (s *Server) StartScheduler(c *gin.Context) {
	// The loop must outlive this request.
	if err := s.scheduler.Start(context.WithoutCancel(c.Request.Context())); err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), "scheduler.start", "scheduler", "", nil)
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) StopScheduler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), schedulerStopTimeout)
	defer cancel()

	if err := s.scheduler.Stop(ctx); err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), "scheduler.stop", "scheduler", "", nil)
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) CronMonthlyBilling(c *gin.Context) {
	s.triggerJob(c, scheduler.JobMonthlyBilling)
}

func (s *Server) CronReminders(c *gin.Context) {
	s.triggerJob(c, scheduler.JobPaymentReminders)
}

func (s *Server) triggerJob(c *gin.Context, job string) {
	resp, err := s.scheduler.Trigger(c.Request.Context(), job)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
