package inventory

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed 容器数据无法解析
var ErrMalformed = errors.New("inventory: malformed container")

// maxSlots 解码时允许的最大槽位数，防止恶意载荷撑爆内存
const maxSlots = 128

// EncodeContainer 将容器编码为可安全放入消息/哈希字段的字符串（JSON + base64）
func EncodeContainer(c Container) (string, error) {
	if c == nil {
		c = Container{}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode container: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeContainer 解码并校验容器；任何异常都包装为 ErrMalformed
func DecodeContainer(s string) (Container, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var c Container
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(c) > maxSlots {
		return nil, fmt.Errorf("%w: %d slots", ErrMalformed, len(c))
	}
	for i, st := range c {
		if st.Count < 0 || st.Count > MaxStack {
			return nil, fmt.Errorf("%w: slot %d count %d", ErrMalformed, i, st.Count)
		}
		if st.Count > 0 && st.Item == "" {
			return nil, fmt.Errorf("%w: slot %d has count without item", ErrMalformed, i)
		}
	}
	return c, nil
}
