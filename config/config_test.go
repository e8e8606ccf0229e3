package config

import "testing"

// TestDefaultValid 默认参数必须通过校验
func TestDefaultValid(t *testing.T) {
	p := Default()
	if err := p.Validate(); err != nil {
		t.Fatalf("default parameters invalid: %v", err)
	}
}

// TestNewCallback 回调修改参数
func TestNewCallback(t *testing.T) {
	p := New(func(p *Parameters) {
		p.UseMiddleProductFormUpdate = false
		p.NumThreads = 4
	}, nil)
	if p.UseMiddleProductFormUpdate || p.NumThreads != 4 {
		t.Errorf("callback not applied: %+v", p)
	}
	p.MarkowitzZlatevParameter = 0
	if err := p.Validate(); err == nil {
		t.Errorf("expected error for zero zlatev parameter")
	}
}
