package security

import "time"

// 告警过滤器：作用于 AlertStore.Snapshot() 返回的快照上的纯谓词，
// 无副作用，可任意组合。

// FilterByStatus 按状态过滤
func FilterByStatus(alerts []SecurityAlert, status AlertStatus) []SecurityAlert {
	out := make([]SecurityAlert, 0)
	for _, a := range alerts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

// FilterByType 按类型过滤
func FilterByType(alerts []SecurityAlert, alertType AlertType) []SecurityAlert {
	out := make([]SecurityAlert, 0)
	for _, a := range alerts {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

// FilterBySeverity 按严重级别过滤
func FilterBySeverity(alerts []SecurityAlert, severity Severity) []SecurityAlert {
	out := make([]SecurityAlert, 0)
	for _, a := range alerts {
		if a.Severity == severity {
			out = append(out, a)
		}
	}
	return out
}

// FilterByUser 按用户过滤
func FilterByUser(alerts []SecurityAlert, userID string) []SecurityAlert {
	out := make([]SecurityAlert, 0)
	for _, a := range alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

// FilterByTimeRange 按时间区间过滤，边界含端点。
func FilterByTimeRange(alerts []SecurityAlert, from, to time.Time) []SecurityAlert {
	out := make([]SecurityAlert, 0)
	for _, a := range alerts {
		if !a.Timestamp.Before(from) && !a.Timestamp.After(to) {
			out = append(out, a)
		}
	}
	return out
}
