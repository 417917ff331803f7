package handoff

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"playersync/inventory"
)

// MessageType 广播频道上的背包同步消息标签
const MessageType = "INVENTORY_UPDATE"

// 消息与持久记录共用的字段名
const (
	FieldPlayer     = "player"
	FieldArmor      = "armor"
	FieldInventory  = "inventory"
	FieldEnderChest = "enderchest"
	FieldHunger     = "hunger"
	FieldXP         = "xp"
)

var (
	// ErrMalformedBundle 字段缺失或无法解析
	ErrMalformedBundle = errors.New("handoff: malformed bundle")
	// ErrDecode 容器数据无法解码
	ErrDecode = errors.New("handoff: container decode failed")
)

// Bundle 一个玩家状态的快照，按值传递，构造后不再修改
// 三个容器保持编码后的形式，直到 Apply 时才解码
type Bundle struct {
	PlayerID   uuid.UUID
	Armor      string
	Inventory  string
	EnderChest string
	Hunger     int
	Level      int
}

// Player 引擎侧玩家：能读写状态、能收到提示
type Player interface {
	UUID() uuid.UUID
	Name() string
	Contents() inventory.Contents
	// SetContents 一次性替换全部状态，对玩家而言是原子的
	SetContents(inventory.Contents)
	Notify(text string)
}

// Roster 查询本进程当前在线的玩家
type Roster interface {
	Lookup(id uuid.UUID) (Player, bool)
}

// RosterFunc 让普通函数满足 Roster
type RosterFunc func(id uuid.UUID) (Player, bool)

func (f RosterFunc) Lookup(id uuid.UUID) (Player, bool) { return f(id) }

// Capture 从在线状态生成快照
func Capture(p Player) (Bundle, error) {
	c := p.Contents()
	armor, err := inventory.EncodeContainer(c.Armor)
	if err != nil {
		return Bundle{}, fmt.Errorf("armor: %w", err)
	}
	inv, err := inventory.EncodeContainer(c.Inventory)
	if err != nil {
		return Bundle{}, fmt.Errorf("inventory: %w", err)
	}
	ender, err := inventory.EncodeContainer(c.EnderChest)
	if err != nil {
		return Bundle{}, fmt.Errorf("ender chest: %w", err)
	}
	return Bundle{
		PlayerID:   p.UUID(),
		Armor:      armor,
		Inventory:  inv,
		EnderChest: ender,
		Hunger:     c.Hunger,
		Level:      c.Level,
	}, nil
}

// Fields 转为消息/哈希使用的字符串字段
func (b Bundle) Fields() map[string]string {
	return map[string]string{
		FieldPlayer:     b.PlayerID.String(),
		FieldArmor:      b.Armor,
		FieldInventory:  b.Inventory,
		FieldEnderChest: b.EnderChest,
		FieldHunger:     strconv.Itoa(b.Hunger),
		FieldXP:         strconv.Itoa(b.Level),
	}
}

// ParseBundle 从字段还原快照；容器内容此时不解码
func ParseBundle(fields map[string]string) (Bundle, error) {
	for _, k := range []string{FieldPlayer, FieldArmor, FieldInventory, FieldEnderChest, FieldHunger, FieldXP} {
		if _, ok := fields[k]; !ok {
			return Bundle{}, fmt.Errorf("%w: missing %q", ErrMalformedBundle, k)
		}
	}
	id, err := uuid.Parse(fields[FieldPlayer])
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: player: %v", ErrMalformedBundle, err)
	}
	hunger, err := strconv.Atoi(fields[FieldHunger])
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: hunger: %v", ErrMalformedBundle, err)
	}
	level, err := strconv.Atoi(fields[FieldXP])
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: xp: %v", ErrMalformedBundle, err)
	}
	if level < 0 {
		return Bundle{}, fmt.Errorf("%w: negative xp %d", ErrMalformedBundle, level)
	}
	return Bundle{
		PlayerID:   id,
		Armor:      fields[FieldArmor],
		Inventory:  fields[FieldInventory],
		EnderChest: fields[FieldEnderChest],
		Hunger:     hunger,
		Level:      level,
	}, nil
}

// Decode 解码三个容器；任一失败则整体失败，不返回部分结果
func (b Bundle) Decode() (inventory.Contents, error) {
	armor, err := inventory.DecodeContainer(b.Armor)
	if err != nil {
		return inventory.Contents{}, fmt.Errorf("%w: armor: %w", ErrDecode, err)
	}
	inv, err := inventory.DecodeContainer(b.Inventory)
	if err != nil {
		return inventory.Contents{}, fmt.Errorf("%w: inventory: %w", ErrDecode, err)
	}
	ender, err := inventory.DecodeContainer(b.EnderChest)
	if err != nil {
		return inventory.Contents{}, fmt.Errorf("%w: ender chest: %w", ErrDecode, err)
	}
	return inventory.Contents{
		Armor:      armor,
		Inventory:  inv,
		EnderChest: ender,
		Hunger:     b.Hunger,
		Level:      b.Level,
	}, nil
}
