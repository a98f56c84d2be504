package buildcheck

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	got := Classify([]string{
		"jupyterlab-git needs to be included in build",
		"foo needs to be removed from build",
		"@jupyterlab/toc changed from 5.0.0 to 5.1.0",
		"jupyterlab-git needs to be included in build",
		"Build is up to date",
		"",
	})
	if !reflect.DeepEqual(got.Install, []string{"jupyterlab-git"}) {
		t.Errorf("Install = %v", got.Install)
	}
	if !reflect.DeepEqual(got.Uninstall, []string{"foo"}) {
		t.Errorf("Uninstall = %v", got.Uninstall)
	}
	if !reflect.DeepEqual(got.Update, []string{"@jupyterlab/toc"}) {
		t.Errorf("Update = %v", got.Update)
	}
}

func TestClassifyRemovalOnly(t *testing.T) {
	got := Classify([]string{"foo needs to be removed from build"})
	if !reflect.DeepEqual(got.Uninstall, []string{"foo"}) || len(got.Install) != 0 || len(got.Update) != 0 {
		t.Errorf("Classify = %+v, want foo under uninstall only", got)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	got := Classify([]string{InstallMessage("a"), UninstallMessage("b"), UpdateMessage("c", "1.0.0", "2.0.0")})
	if len(got.Install) != 1 || got.Install[0] != "a" ||
		len(got.Uninstall) != 1 || got.Uninstall[0] != "b" ||
		len(got.Update) != 1 || got.Update[0] != "c" {
		t.Errorf("Classify = %+v", got)
	}
}

func TestClassifyEmpty(t *testing.T) {
	if got := Classify(nil); got.Pending("anything") {
		t.Errorf("Classify(nil) = %+v", got)
	}
}
