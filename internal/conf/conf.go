package conf

import "time"

// Bootstrap 启动配置
// 通过 kratos config 从配置文件加载（见 configs/config.yaml）
type Bootstrap struct {
	Server   *Server   `json:"server"`
	Data     *Data     `json:"data"`
	Metering *Metering `json:"metering"`
}

// Server 服务端配置
type Server struct {
	Http *HTTP `json:"http"`
}

// HTTP HTTP 服务配置
type HTTP struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
	Rocketmq *Rocketmq `json:"rocketmq"`
}

// Database 数据库配置
type Database struct {
	Driver string `json:"driver"`
	Source string `json:"source"`
}

// Redis Redis 配置
type Redis struct {
	Addr         string   `json:"addr"`
	Password     string   `json:"password"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// Rocketmq RocketMQ 配置
type Rocketmq struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	Topic       string   `json:"topic"`
	GroupName   string   `json:"group_name"`
	RetryTimes  int32    `json:"retry_times"`
}

// Metering 计量配置
// 套餐的配额/费率可在此覆盖编译期默认值（free 套餐除外，见 biz.TierCatalog）
type Metering struct {
	// QuotaLowPercentThreshold 配额低阈值（剩余百分比），用于告警指标
	QuotaLowPercentThreshold float64 `json:"quota_low_percent_threshold"`
	// Quotas 配额覆盖：套餐 -> 服务类型 -> 每月字符数
	Quotas map[string]map[string]int64 `json:"quotas"`
	// OverageRates 超额费率覆盖：套餐 -> 服务类型 -> 每 1000 字符费用（分）
	OverageRates map[string]map[string]float64 `json:"overage_rates"`
}

// Duration 配置中的时长字段（如 "1s"、"500ms"）
type Duration string

// AsDuration 解析为 time.Duration，解析失败返回 0
func (d Duration) AsDuration() time.Duration {
	v, err := time.ParseDuration(string(d))
	if err != nil {
		return 0
	}
	return v
}
