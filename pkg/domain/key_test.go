package domain

import "testing"

func TestCanonicalName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"fixed_ips", "FixedIp"},
		{"networks", "Network"},
		{"services", "Service"},
		{"instance_info_caches", "InstanceInfoCache"},
		{"FixedIp", "FixedIp"},
		{"Network", "Network"},
		{"policies", "Policy"},
		{"address", "Address"},
		{"", ""},
	}
	for _, c := range cases {
		if got := CanonicalName(c.in); got != c.want {
			t.Fatalf("CanonicalName(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestEntityKeyString(t *testing.T) {
	k := NewKey("fixed_ips", 3)
	if got := k.String(); got != "FixedIp_3" {
		t.Fatalf("unexpected key string %q", got)
	}
	if NewKey("FixedIp", 3).String() != k.String() {
		t.Fatalf("tag and canonical name should render the same key")
	}
	if !k.Assigned() || k.Provisional() {
		t.Fatalf("expected assigned key")
	}
	if !NewKey("fixed_ips", -1).Provisional() {
		t.Fatalf("expected provisional key")
	}
	if NewKey("fixed_ips", 0).Assigned() {
		t.Fatalf("zero id must not count as assigned")
	}
}
