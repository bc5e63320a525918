package common

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/ltree/lib/lockmgr"
	"github.com/ValentinKolb/ltree/lib/tree"
	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logger.LogLevel
		wantErr bool
	}{
		{"debug", logger.DEBUG, false},
		{"INFO", logger.INFO, false},
		{"warn", logger.WARNING, false},
		{"warning", logger.WARNING, false},
		{" error ", logger.ERROR, false},
		{"verbose", logger.INFO, true},
	}

	for _, tc := range tests {
		got, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoggerLevels(t *testing.T) {
	var sb strings.Builder
	l := CreateLogger("test").(*ltreeLogger)
	l.logger.SetOutput(&sb)
	l.logger.SetFlags(0)

	l.SetLevel(logger.WARNING)
	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)

	out := sb.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warning level: %q", out)
	}
	if !strings.Contains(out, "WARN  | test            | shown 2") {
		t.Errorf("unexpected log output: %q", out)
	}
}

func TestBenchConfig(t *testing.T) {
	c := &BenchConfig{
		Lock:            lockmgr.KindRWSem,
		Backend:         tree.ImplCBTree,
		PoolCapacity:    1024,
		ReclaimInterval: time.Millisecond,
		Threads:         4,
		Ops:             100,
		DeleteRatio:     20,
		LogLevel:        "info",
	}

	sc := c.StoreConfig()
	if sc.Lock != c.Lock || sc.Backend != c.Backend || sc.PoolCapacity != 1024 || sc.ReclaimInterval != time.Millisecond {
		t.Errorf("StoreConfig() = %+v does not match %+v", sc, c)
	}

	s := c.String()
	for _, want := range []string{"rwsem", "cbtree", "1024 nodes", "20%", "1ms"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() does not contain %q:\n%s", want, s)
		}
	}
}
