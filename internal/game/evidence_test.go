// internal/game/evidence_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceResolverMatchesLocationKeyword(t *testing.T) {
	r := NewEvidenceResolver(testScript())

	found := r.Resolve("林医生", "我想去书房看看有没有线索")
	require.NotNil(t, found)
	assert.Equal(t, "带血的信纸", found.Name)
	assert.Equal(t, "林医生", found.DiscoveredBy)
	assert.Equal(t, 1, found.Order)
}

func TestEvidenceResolverIsCaseInsensitive(t *testing.T) {
	script := testScript()
	script.Evidence[0].Location = "Study Room"
	r := NewEvidenceResolver(script)

	found := r.Resolve("小周", "让我搜一下STUDY附近")
	require.NotNil(t, found)
	assert.Equal(t, "带血的信纸", found.Name)
}

func TestEvidenceResolverDiscoversEachItemAtMostOnce(t *testing.T) {
	r := NewEvidenceResolver(testScript())

	require.NotNil(t, r.Resolve("林医生", "搜查书房"))
	// 同一地点再搜，证据已经被拿走
	assert.Nil(t, r.Resolve("小周", "我也去书房找找"))
	assert.Equal(t, 1, r.DiscoveredCount())
}

func TestEvidenceResolverAtMostOneHitPerUtterance(t *testing.T) {
	r := NewEvidenceResolver(testScript())

	// 一句话提到两个地点，只按剧本顺序命中第一条
	found := r.Resolve("张律师", "我先去花园，再去地下室")
	require.NotNil(t, found)
	assert.Equal(t, "空药瓶", found.Name)
	assert.Equal(t, 1, r.DiscoveredCount())

	// 第二次发言才拿到下一条
	found = r.Resolve("张律师", "现在去地下室")
	require.NotNil(t, found)
	assert.Equal(t, "伪造的遗嘱", found.Name)
	assert.Equal(t, 2, found.Order)
}

func TestEvidenceResolverNoMatch(t *testing.T) {
	r := NewEvidenceResolver(testScript())

	assert.Nil(t, r.Resolve("小周", "我觉得大家应该冷静一点"))
	assert.Nil(t, r.Resolve("小周", ""))
	assert.Equal(t, 0, r.DiscoveredCount())
}

func TestEvidenceResolverMarkDiscovered(t *testing.T) {
	r := NewEvidenceResolver(testScript())

	rec := r.MarkDiscovered("空药瓶", "系统")
	require.NotNil(t, rec)
	assert.Equal(t, "系统", rec.DiscoveredBy)

	// 重复标记无效
	assert.Nil(t, r.MarkDiscovered("空药瓶", "林医生"))
	// 不存在的证据无效
	assert.Nil(t, r.MarkDiscovered("不存在的证据", "林医生"))
	assert.Equal(t, 1, r.DiscoveredCount())
}

func TestEvidenceResolverDiscoveredOrder(t *testing.T) {
	r := NewEvidenceResolver(testScript())

	// 刻意逆着剧本顺序发现
	require.NotNil(t, r.Resolve("小周", "去地下室"))
	require.NotNil(t, r.Resolve("林医生", "去书房"))

	discovered := r.Discovered()
	require.Len(t, discovered, 2)
	assert.Equal(t, "伪造的遗嘱", discovered[0].Name)
	assert.Equal(t, "带血的信纸", discovered[1].Name)
}

func TestEvidenceResolverReset(t *testing.T) {
	r := NewEvidenceResolver(testScript())
	require.NotNil(t, r.Resolve("林医生", "搜查书房"))

	r.Reset()
	assert.Equal(t, 0, r.DiscoveredCount())
	found := r.Resolve("小周", "搜查书房")
	require.NotNil(t, found)
	assert.Equal(t, 1, found.Order)
}

func TestDiscoveryAnnouncement(t *testing.T) {
	assert.Equal(t, "林医生 发现了证据：带血的信纸", DiscoveryAnnouncement("林医生", "带血的信纸"))
}
