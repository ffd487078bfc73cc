package conf

type Bootstrap struct {
	Server *Server `json:"server"`
	Radar  *Radar  `json:"radar"`
	Jobs   *Jobs   `json:"jobs"`
}

type Server struct {
	Http *HTTP `json:"http"`
}

type HTTP struct {
	Addr    string `json:"addr"`
	Timeout string `json:"timeout"`
}

// Radar 指向 company_radar 的配置文件，数据库、LLM、向量库等全部沿用
type Radar struct {
	Config string `json:"config"`
}

// Jobs 后台生成任务
type Jobs struct {
	// Retention 已结束任务的保留时长，如 "1h"
	Retention string `json:"retention"`
	// JobTimeout 单个任务的超时，为空不限
	JobTimeout string `json:"job_timeout"`
}
