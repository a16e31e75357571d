package seed

import (
	"strings"
	"testing"
	"time"

	"index-pump/internal/source"
)

func col(name, dataType string) source.ColumnInfo {
	return source.ColumnInfo{Name: name, DataType: dataType}
}

func TestGenerateValueByName(t *testing.T) {
	v := GenerateValue(col("contact_email", "varchar"))
	s, ok := v.(string)
	if !ok || !strings.Contains(s, "@") {
		t.Errorf("email column produced %v", v)
	}

	v = GenerateValue(col("external_uuid", "varchar"))
	if s, ok := v.(string); !ok || len(s) != 36 {
		t.Errorf("uuid column produced %v", v)
	}
}

func TestGenerateValueByType(t *testing.T) {
	cases := []struct {
		dataType string
		check    func(v interface{}) bool
	}{
		{"tinyint", func(v interface{}) bool { n, ok := v.(int); return ok && n >= 0 && n < 128 }},
		{"integer", func(v interface{}) bool { _, ok := v.(int); return ok }},
		{"bigint", func(v interface{}) bool { _, ok := v.(int64); return ok }},
		{"boolean", func(v interface{}) bool { _, ok := v.(bool); return ok }},
		{"double precision", func(v interface{}) bool { _, ok := v.(float64); return ok }},
		{"date", func(v interface{}) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			_, err := time.Parse("2006-01-02", s)
			return err == nil
		}},
		{"timestamp without time zone", func(v interface{}) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			_, err := time.Parse("2006-01-02 15:04:05", s)
			return err == nil
		}},
		{"varchar", func(v interface{}) bool { s, ok := v.(string); return ok && s != "" }},
	}
	for _, tc := range cases {
		v := GenerateValue(col("payload", tc.dataType))
		if !tc.check(v) {
			t.Errorf("type %s produced %T %v", tc.dataType, v, v)
		}
	}
}

func TestRecentTimeWindow(t *testing.T) {
	for i := 0; i < 20; i++ {
		ts := recentTime()
		if ts.After(time.Now()) {
			t.Fatalf("recentTime in the future: %v", ts)
		}
		if time.Since(ts) > 91*24*time.Hour {
			t.Fatalf("recentTime too old: %v", ts)
		}
	}
}
