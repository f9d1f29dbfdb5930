// services/stats_service.go
package services

import (
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"competition-portal-system/models"
)

type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

// DashboardStats is the admin dashboard summary.
type DashboardStats struct {
	TotalUsers         int64   `json:"total_users"`
	TotalTournaments   int64   `json:"total_tournaments"`
	TotalSubmissions   int64   `json:"total_submissions"`
	PendingSubmissions int64   `json:"pending_submissions"`
	TotalCertificates  int64   `json:"total_certificates"`
	TotalPayments      int64   `json:"total_payments"`
	TotalPaymentAmount float64 `json:"total_payment_amount"`
}

// GetDashboardStats handles GET /admin/stats.
// Each count query runs in its own goroutine and writes only its own slot;
// the reduction into the response happens single-threaded after the wait.
func (s *StatsService) GetDashboardStats(c *fiber.Ctx) error {
	type partial struct {
		value float64
		err   error
	}

	queries := []struct {
		name string
		run  func() (float64, error)
	}{
		{"users", s.countOf(&models.PortalUser{}, "")},
		{"tournaments", s.countOf(&models.Tournament{}, "")},
		{"submissions", s.countOf(&models.Submission{}, "")},
		{"pending_submissions", s.countOf(&models.Submission{}, "status = 'pending'")},
		{"certificates", s.countOf(&models.Certificate{}, "")},
		{"payments", s.countOf(&models.PaymentMirror{}, "")},
		{"payment_amount", s.sumPaidAmount},
	}

	partials := make([]partial, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, run func() (float64, error)) {
			defer wg.Done()
			v, err := run()
			partials[i] = partial{value: v, err: err}
		}(i, q.run)
	}
	wg.Wait()

	for i, p := range partials {
		if p.err != nil {
			log.Printf("❌ Dashboard stat query %q failed: %v", queries[i].name, p.err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute dashboard stats"})
		}
	}

	stats := DashboardStats{
		TotalUsers:         int64(partials[0].value),
		TotalTournaments:   int64(partials[1].value),
		TotalSubmissions:   int64(partials[2].value),
		PendingSubmissions: int64(partials[3].value),
		TotalCertificates:  int64(partials[4].value),
		TotalPayments:      int64(partials[5].value),
		TotalPaymentAmount: partials[6].value / 100, // stored in cents
	}
	return c.JSON(stats)
}

func (s *StatsService) countOf(model interface{}, condition string) func() (float64, error) {
	return func() (float64, error) {
		var count int64
		db := s.DB.Model(model)
		if condition != "" {
			db = db.Where(condition)
		}
		if err := db.Count(&count).Error; err != nil {
			return 0, err
		}
		return float64(count), nil
	}
}

func (s *StatsService) sumPaidAmount() (float64, error) {
	var total struct{ Sum float64 }
	err := s.DB.Model(&models.PaymentMirror{}).
		Select("COALESCE(SUM(paid_amount), 0) AS sum").
		Where("status = ?", "paid").
		Scan(&total).Error
	return total.Sum, err
}
