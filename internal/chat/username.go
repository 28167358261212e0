package chat

import (
	"fmt"
	"math/rand/v2"
)

var (
	adjectives = []string{"Cool", "Awesome", "Brave", "Clever", "Swift", "Bright", "Witty", "Smart", "Quick", "Bold", "Calm", "Kind"}
	nouns      = []string{"Panda", "Eagle", "Tiger", "Wolf", "Fox", "Bear", "Lion", "Hawk", "Otter", "Falcon", "Owl", "Heron"}
)

// RandomUsername returns an anonymous display name such as "BraveFox42".
func RandomUsername() string {
	return fmt.Sprintf("%s%s%d",
		adjectives[rand.IntN(len(adjectives))],
		nouns[rand.IntN(len(nouns))],
		10+rand.IntN(90))
}
