package objstore

import (
	"context"
	"errors"
	"testing"

	"jdextract/pkg/contract"
)

func TestLocate(t *testing.T) {
	cases := []struct {
		opts      Options
		ref       string
		bucket    string
		key       string
		wantErrIs error
	}{
		{Options{}, "s3://b/dir/in.xlsx", "b", "dir/in.xlsx", nil},
		{Options{Bucket: "x", Prefix: "p"}, "s3://b/k.xlsx", "b", "k.xlsx", nil},
		{Options{Bucket: "x", Prefix: "/runs/"}, "out.xlsx", "x", "runs/out.xlsx", nil},
		{Options{Bucket: "x"}, "/abs/out.xlsx", "x", "abs/out.xlsx", nil},
		{Options{}, "out.xlsx", "", "", contract.ErrConfiguration},
		{Options{}, "s3://b", "", "", contract.ErrPathInvalid},
		{Options{}, "s3:///k", "", "", contract.ErrPathInvalid},
		{Options{Bucket: "x", Prefix: "p"}, "../../etc", "", "", contract.ErrPathInvalid},
		{Options{Bucket: "x"}, "  ", "", "", contract.ErrPathInvalid},
	}
	for _, c := range cases {
		b, k, err := Locate(c.opts, c.ref)
		if c.wantErrIs != nil {
			if !errors.Is(err, c.wantErrIs) {
				t.Fatalf("ref %q 期望 %v，得到 %v", c.ref, c.wantErrIs, err)
			}
			continue
		}
		if err != nil || b != c.bucket || k != c.key {
			t.Fatalf("ref %q => (%s,%s,%v)", c.ref, b, k, err)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("a/b.XLSX"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("xlsx: %s", got)
	}
	if got := ContentType("out.jsonl"); got != "application/x-ndjson" {
		t.Fatalf("jsonl: %s", got)
	}
	if got := ContentType("noext"); got != "application/octet-stream" {
		t.Fatalf("default: %s", got)
	}
}

func TestNewClientOffline(t *testing.T) {
	isolateAWS(t)
	c, err := NewClient(context.Background(), Options{Endpoint: "http://127.0.0.1:9", Region: "cn-north-1"})
	if err != nil || c == nil {
		t.Fatalf("new client: %v", err)
	}
	if r := c.Options().Region; r != "cn-north-1" {
		t.Fatalf("region=%s", r)
	}
	if !c.Options().UsePathStyle {
		t.Fatalf("自定义端点应默认 path-style")
	}
}
