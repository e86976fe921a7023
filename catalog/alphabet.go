package catalog

import "strings"

// alphabets maps each kind to its symbol set. Symbols are strings so that
// multi-rune emoji count as one code position.
var alphabets = map[AlphabetKind][]string{
	AlphabetAlnum:      split("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"),
	AlphabetLowerAlnum: split("abcdefghijklmnopqrstuvwxyz0123456789"),
	AlphabetDigits:     split("0123456789"),
	AlphabetHex:        split("abcdef0123456789"),
	AlphabetEmoji:      emojiSymbols,
}

func split(s string) []string {
	return strings.Split(s, "")
}

// emojiSymbols is the fixed emoji vocabulary used by emoji-coded services.
// Hosts that mint emoji codes draw from the common pictograph ranges; this
// set covers the symbols observed in the wild.
var emojiSymbols = []string{
	"😀", "😁", "😂", "🤣", "😃", "😄", "😅", "😆", "😉", "😊",
	"😋", "😎", "😍", "😘", "🥰", "😗", "😙", "😚", "🙂", "🤗",
	"🤩", "🤔", "🤨", "😐", "😑", "😶", "🙄", "😏", "😣", "😥",
	"😮", "🤐", "😯", "😪", "😫", "🥱", "😴", "😌", "😛", "😜",
	"😝", "🤤", "😒", "😓", "😔", "😕", "🙃", "🤑", "😲", "🙁",
	"😖", "😞", "😟", "😤", "😢", "😭", "😦", "😧", "😨", "😩",
	"🤯", "😬", "😰", "😱", "🥵", "🥶", "😳", "🤪", "😵", "🥴",
	"😠", "😡", "🤬", "😷", "🤒", "🤕", "🤢", "🤮", "🤧", "😇",
	"🥳", "🥺", "🤠", "🤡", "🤥", "🤫", "🤭", "🧐", "🤓", "👻",
	"💀", "👽", "🤖", "💩", "🔥", "✨", "🌟", "💫", "💥", "💦",
	"👍", "👎", "👊", "✊", "🤛", "🤜", "🤞", "✌️", "🤟", "🤘",
	"👌", "🤏", "👈", "👉", "👆", "👇", "☝️", "✋", "🤚", "🖐️",
	"🖖", "👋", "🤙", "💪", "🙏", "👏", "🙌", "🤲", "🤝", "💅",
	"🎃", "🎄", "🎆", "🎇", "🎈", "🎉", "🎊", "🎁", "🏆", "🥇",
	"⚽", "🏀", "🏈", "⚾", "🎾", "🏐", "🎱", "🎮", "🎲", "🎯",
	"🍕", "🍔", "🍟", "🌭", "🍿", "🍩", "🍪", "🎂", "🍰", "🍫",
}
