package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// defaultKeyEnv: 与各 LLM 客户端一致的 API Key 环境变量缺省名。
var defaultKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"gemini": "GOOGLE_API_KEY",
}

// offlineKey: 不访问网络的客户端（mock/flaky）共用的分组键来源。
const offlineKey = "MOCK_DEBUG_KEY"

// DeriveKeyFromProviderOptions 按 provider 的 client 与 Options 推导限流分组键 client:sha256(key)。
// key 的取值顺序与客户端构造一致：api_key > api_key_env > 客户端缺省环境变量；
// mock/flaky 无 key 时使用固定值，使同一进程内的离线 provider 共享额度。
// 解析不到 key 时返回错误，由调用方退化为 provider 名称。
func DeriveKeyFromProviderOptions(client string, raw json.RawMessage) (LimitKey, error) {
	// 只读通用键名，不依赖 plugins/* 的 Options 类型
	var obj struct {
		APIKey    string `json:"api_key"`
		APIKeyEnv string `json:"api_key_env"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &obj)
	}

	key := strings.TrimSpace(obj.APIKey)
	if key == "" {
		env := obj.APIKeyEnv
		if env == "" {
			env = defaultKeyEnv[client]
		}
		if env != "" {
			key = strings.TrimSpace(os.Getenv(env))
		}
	}
	if key == "" && (client == "mock" || client == "flaky") {
		key = offlineKey
	}
	if key == "" {
		return "", fmt.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:])), nil
}
