package index

import (
	"testing"
)

func TestDecodeRecords(t *testing.T) {
	payload := []byte(`[
		{"v": "1.0.0", "deps": [], "cksum": "sha256:aabbcc"},
		{"v": "1.1.0", "deps": [{"name": "core-lib", "req": "^2.0"}], "cksum": "sha256:ddeeff", "yanked": true}
	]`)

	records, err := DecodeRecords(payload)
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Version != "1.0.0" || records[0].Checksum != "sha256:aabbcc" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if !records[1].Yanked {
		t.Errorf("second record should be yanked")
	}
	if got := records[1].Dependencies[0].Name; got != "core-lib" {
		t.Errorf("dependency name = %q, want core-lib", got)
	}
}

func TestDecodeRecordsInvalid(t *testing.T) {
	if _, err := DecodeRecords([]byte("{not json")); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestFindVersion(t *testing.T) {
	records := IndexRecords{
		{Version: "1.0.0"},
		{Version: "1.1.0"},
	}

	if rec := records.FindVersion("1.1.0"); rec == nil || rec.Version != "1.1.0" {
		t.Errorf("FindVersion(1.1.0) = %+v", rec)
	}
	if rec := records.FindVersion("9.9.9"); rec != nil {
		t.Errorf("FindVersion(9.9.9) = %+v, want nil", rec)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	records := IndexRecords{
		{Version: "0.1.0", Dependencies: []IndexDependency{{Name: "dep", Req: "1.0.0"}}, Checksum: "sha256:00"},
	}

	data, err := EncodeRecords(records)
	if err != nil {
		t.Fatalf("EncodeRecords: %v", err)
	}

	decoded, err := DecodeRecords(data)
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Version != "0.1.0" {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}
