package cache

import "testing"

func TestRedisKeyUsesOneSeparator(t *testing.T) {
	cases := []struct{ prefix, want string }{
		{"", "product:8901"},
		{"terminal:main-store", "terminal:main-store:product:8901"},
		{"terminal:main-store:", "terminal:main-store:product:8901"},
	}
	for _, tc := range cases {
		c := &RedisLookupCache{prefix: tc.prefix}
		if got := c.key("product:8901"); got != tc.want {
			t.Fatalf("prefix %q: expected %q, got %q", tc.prefix, tc.want, got)
		}
	}
}
