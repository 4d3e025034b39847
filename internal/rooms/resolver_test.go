package rooms

import "testing"

func TestRoomGroupName(t *testing.T) {
	cases := []struct {
		a, b int64
		want string
	}{
		{3, 7, "chat_3_7"},
		{7, 3, "chat_3_7"},
		{9, 10, "chat_9_10"},
		{10, 9, "chat_9_10"},
		{100, 2, "chat_2_100"},
	}
	for _, c := range cases {
		if got := RoomGroupName(c.a, c.b); got != c.want {
			t.Fatalf("RoomGroupName(%d, %d) = %q, want %q", c.a, c.b, got, c.want)
		}
	}
}

func TestRoomGroupName_Symmetric(t *testing.T) {
	for a := int64(1); a < 30; a++ {
		for b := int64(1); b < 30; b++ {
			if RoomGroupName(a, b) != RoomGroupName(b, a) {
				t.Fatalf("asymmetric for %d,%d", a, b)
			}
		}
	}
}

func TestUserGroupName(t *testing.T) {
	if got := UserGroupName(7); got != "user_7" {
		t.Fatalf("got %q", got)
	}
	id, ok := ParseUserGroupName("user_7")
	if !ok || id != 7 {
		t.Fatalf("ParseUserGroupName: %d %v", id, ok)
	}
}

func TestParseRoomGroupName(t *testing.T) {
	lo, hi, ok := ParseRoomGroupName(RoomGroupName(10, 9))
	if !ok || lo != 9 || hi != 10 {
		t.Fatalf("got %d %d %v", lo, hi, ok)
	}

	for _, bad := range []string{"", "user_3", "chat_3", "chat_x_4", "chat_7_3"} {
		if _, _, ok := ParseRoomGroupName(bad); ok {
			t.Fatalf("%q must not parse", bad)
		}
	}
}
