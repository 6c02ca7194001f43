package mqtt

import "testing"

func TestSiteFromTopic(t *testing.T) {
	cases := []struct {
		topic  string
		want   uint
		wantOK bool
	}{
		{"bms/12/readings", 12, true},
		{"fleet/west/7/readings", 7, true},
		{"bms/readings", 0, false},
		{"bms/abc/readings", 0, false},
	}

	for _, tc := range cases {
		got, err := siteFromTopic(tc.topic)
		if tc.wantOK && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.topic, err)
		}
		if !tc.wantOK && err == nil {
			t.Fatalf("%s: expected error", tc.topic)
		}
		if got != tc.want {
			t.Fatalf("%s: expected site %d, got %d", tc.topic, tc.want, got)
		}
	}
}

func TestDisabledSubscriberIsInert(t *testing.T) {
	sub, err := NewSubscriber(SubscriberConfig{Enabled: false})
	if err != nil {
		t.Fatalf("disabled subscriber must not fail: %v", err)
	}
	if err := sub.Subscribe(); err != nil {
		t.Fatalf("disabled subscribe must be a no-op: %v", err)
	}
	if sub.IsConnected() {
		t.Fatal("disabled subscriber reports connected")
	}
	sub.Close()
}
