package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

func TestQueryLoggerTrace(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "db-test", Format: logger.FormatJSON, Output: buf})
	ql := newQueryLogger(logg, 50*time.Millisecond)
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(ctx, time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast query should not be logged: %s", buf.String())
	}

	ql.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("record not found should not be logged: %s", buf.String())
	}

	ql.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	if !bytes.Contains(buf.Bytes(), []byte("slow database query")) {
		t.Fatalf("expected slow query entry: %s", buf.String())
	}

	buf.Reset()
	ql.Trace(ctx, time.Now(), sql, errors.New("relation does not exist"))
	if !bytes.Contains(buf.Bytes(), []byte("database query failed")) || !bytes.Contains(buf.Bytes(), []byte("SELECT 1")) {
		t.Fatalf("expected failed query entry: %s", buf.String())
	}

	buf.Reset()
	ql.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sql, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode should drop everything: %s", buf.String())
	}
}

func TestQueryLoggerNilLoggerDiscards(t *testing.T) {
	if newQueryLogger(nil, time.Second) != gormlogger.Discard {
		t.Fatal("expected discard logger without a service logger")
	}
}
