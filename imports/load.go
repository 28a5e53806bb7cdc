package imports

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"neo-import-export/common"
	"neo-import-export/index"
	"neo-import-export/logger"
	"neo-import-export/parsers"
)

// Load extracts both feeds and links them into a database
func Load(neoPath, cadPath string) (*index.NEODatabase, error) {
	start := time.Now()

	neoList, err := parsers.LoadNEOs(neoPath)
	if err != nil {
		return nil, feedError(err, "neo", neoPath)
	}
	common.RecordsExtracted.WithLabelValues("neo").Add(float64(len(neoList)))

	approachList, err := parsers.LoadApproaches(cadPath)
	if err != nil {
		return nil, feedError(err, "cad", cadPath)
	}
	common.RecordsExtracted.WithLabelValues("cad").Add(float64(len(approachList)))

	db, err := index.New(neoList, approachList)
	if err != nil {
		return nil, err
	}

	logger.Info("feeds loaded",
		zap.String("neo_path", neoPath),
		zap.String("cad_path", cadPath),
		zap.Int("neos", len(neoList)),
		zap.Int("approaches", len(approachList)),
		zap.Duration("duration", time.Since(start)),
	)
	return db, nil
}

func feedError(err error, feed, path string) error {
	var e *common.Error
	if errors.As(err, &e) {
		return e.WithDetail("feed", feed).WithDetail("path", path)
	}
	return common.WrapError(err, common.ErrorTypeFormat, "load "+feed+" feed").WithDetail("path", path)
}
