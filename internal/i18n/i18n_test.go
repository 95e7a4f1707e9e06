package i18n

import (
	"context"
	"testing"
)

func TestMatch(t *testing.T) {
	b := MustBundle(ZhCN)

	tests := []struct {
		header string
		want   string
	}{
		{"", ZhCN},
		{"en-US,en;q=0.9", EnUS},
		{"en", EnUS},
		{"zh-CN,zh;q=0.8", ZhCN},
		{"fr-FR", ZhCN},
		{";;;garbage", ZhCN},
	}
	for _, tt := range tests {
		if got := b.Match(tt.header); got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestNewBundle_DefaultLocale(t *testing.T) {
	if got := MustBundle("en").DefaultLocale(); got != EnUS {
		t.Errorf("DefaultLocale() = %q, want %q", got, EnUS)
	}
	if got := MustBundle("not a locale").DefaultLocale(); got != ZhCN {
		t.Errorf("DefaultLocale() = %q, want %q", got, ZhCN)
	}
}

func TestTranslate(t *testing.T) {
	b := MustBundle(ZhCN)
	if err := b.LoadMessages(ZhCN, []byte(`{"only.zh": "仅中文"}`)); err != nil {
		t.Fatalf("LoadMessages() error = %v", err)
	}

	tests := []struct {
		name   string
		locale string
		key    string
		args   []any
		want   string
	}{
		{"english", EnUS, "contract.not.exist", nil, "Contract does not exist"},
		{"chinese", ZhCN, "contract.not.exist", nil, "合同不存在"},
		{"fallback to zh", EnUS, "only.zh", nil, "仅中文"},
		{"missing key", EnUS, "no.such.key", nil, "no.such.key"},
		{"with args", EnUS, "common.field.required", []any{"Name"}, "Name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Translate(tt.locale, tt.key, tt.args...); got != tt.want {
				t.Errorf("Translate(%q, %q) = %q, want %q", tt.locale, tt.key, got, tt.want)
			}
		})
	}
}

func TestT_UsesContextLocale(t *testing.T) {
	b := MustBundle(ZhCN)

	ctx := WithLocale(context.Background(), EnUS)
	if got := b.T(ctx, "export.sheet.name"); got != "Export Data" {
		t.Errorf("T() = %q, want %q", got, "Export Data")
	}
	if got := b.T(context.Background(), "export.sheet.name"); got != "导出数据" {
		t.Errorf("T() without locale = %q, want %q", got, "导出数据")
	}
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	b := MustBundle(ZhCN)
	for key := range b.catalogs[ZhCN] {
		if _, ok := b.catalogs[EnUS][key]; !ok {
			t.Errorf("key %q missing from %s catalog", key, EnUS)
		}
	}
	for key := range b.catalogs[EnUS] {
		if _, ok := b.catalogs[ZhCN][key]; !ok {
			t.Errorf("key %q missing from %s catalog", key, ZhCN)
		}
	}
}
