package server

import (
	"strings"

	"github.com/google/uuid"

	"playersync/inventory"
)

// InputKind 输入类型
type InputKind int

const (
	InputMove  InputKind = iota
	InputGive            // 往背包某格放物品
	InputClear           // 清空背包
	InputEat             // 设置饱食度
	InputXP              // 设置等级
)

// Input 客户端输入（意图），由服务端在 Tick 中解释并驱动世界状态
type Input struct {
	PlayerID uuid.UUID
	Kind     InputKind
	Command  Direction
	Item     string
	Count    int
	Slot     int
	Value    int
	Seq      int64 // 客户端本地序列号，用于去重与确认
}

// 入站输入的简单 JSON 结构（WebSocket 文本消息）
// 示例：{"type":"move","command":"up"}
//
//	{"type":"give","item":"minecraft:apple","count":3,"slot":0}
//	{"type":"eat","value":18}
type InputMessage struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Item    string `json:"item,omitempty"`
	Count   int    `json:"count,omitempty"`
	Slot    int    `json:"slot,omitempty"`
	Value   int    `json:"value,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
}

// parseInput 把客户端消息翻译为输入；无法识别的返回 false
func parseInput(pid uuid.UUID, im InputMessage) (Input, bool) {
	in := Input{PlayerID: pid, Seq: im.Seq}
	switch strings.ToLower(im.Type) {
	case "move":
		in.Kind = InputMove
		switch strings.ToLower(im.Command) {
		case "up":
			in.Command = DirUp
		case "down":
			in.Command = DirDown
		case "left":
			in.Command = DirLeft
		case "right":
			in.Command = DirRight
		default:
			in.Command = DirNone
		}
	case "give":
		if im.Item == "" || im.Count <= 0 || im.Count > inventory.MaxStack {
			return Input{}, false
		}
		if im.Slot < 0 || im.Slot >= inventory.InventorySlots {
			return Input{}, false
		}
		in.Kind, in.Item, in.Count, in.Slot = InputGive, im.Item, im.Count, im.Slot
	case "clear":
		in.Kind = InputClear
	case "eat":
		in.Kind, in.Value = InputEat, im.Value
	case "xp":
		in.Kind, in.Value = InputXP, im.Value
	default:
		return Input{}, false
	}
	return in, true
}
