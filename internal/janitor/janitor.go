// Package janitor периодически чистит каталог загрузок от файлов, брошенных после сбоев.
package janitor

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/metrics"
	"github.com/robfig/cron/v3"
)

// DefaultMaxAge — файлы старше часа считаются брошенными.
const DefaultMaxAge = time.Hour

type Janitor struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
	cron   *cron.Cron
}

// New регистрирует очистку по расписанию spec ("@every 30m", "0 * * * *" и т.п.).
func New(dir, spec string, maxAge time.Duration) (*Janitor, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	j := &Janitor{dir: dir, maxAge: maxAge, now: time.Now, cron: cron.New()}
	if _, err := j.cron.AddFunc(spec, func() { j.Sweep() }); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", spec, err)
	}
	return j, nil
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop останавливает расписание и ждёт текущую очистку.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }

// Sweep удаляет обычные файлы старше maxAge и возвращает их число.
func (j *Janitor) Sweep() int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("janitor: read %s: %v", j.dir, err)
		}
		return 0
	}
	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("janitor: remove %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("janitor: removed %d stale file(s) from %s", removed, j.dir)
	}
	metrics.FilesSwept(removed)
	return removed
}
