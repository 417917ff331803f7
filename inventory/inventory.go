package inventory

// 各容器的槽位数
const (
	ArmorSlots      = 4
	InventorySlots  = 36
	EnderChestSlots = 27

	// MaxStack 单格最大堆叠数
	MaxStack = 64
	// MaxHunger 饱食度上限（由引擎约束，这里只用作默认值）
	MaxHunger = 20
)

// Stack 一格物品；Count 为 0 表示空格
type Stack struct {
	Item   string `json:"item,omitempty"`
	Count  int    `json:"count,omitempty"`
	Damage int    `json:"damage,omitempty"`
}

// Empty 是否为空格
func (s Stack) Empty() bool { return s.Count == 0 }

// Container 定长物品容器（盔甲栏 / 背包 / 末影箱）
type Container []Stack

// NewContainer 创建 n 个空格的容器
func NewContainer(n int) Container { return make(Container, n) }

// Clone 深拷贝，避免调用方共享底层数组
func (c Container) Clone() Container {
	if c == nil {
		return nil
	}
	out := make(Container, len(c))
	copy(out, c)
	return out
}

// Contents 一个玩家需要同步的全部可变状态
type Contents struct {
	Armor      Container
	Inventory  Container
	EnderChest Container
	Hunger     int
	Level      int
}

// NewContents 新玩家的默认状态：空容器、满饱食度、0 级
func NewContents() Contents {
	return Contents{
		Armor:      NewContainer(ArmorSlots),
		Inventory:  NewContainer(InventorySlots),
		EnderChest: NewContainer(EnderChestSlots),
		Hunger:     MaxHunger,
	}
}

// Clone 深拷贝
func (c Contents) Clone() Contents {
	c.Armor = c.Armor.Clone()
	c.Inventory = c.Inventory.Clone()
	c.EnderChest = c.EnderChest.Clone()
	return c
}
