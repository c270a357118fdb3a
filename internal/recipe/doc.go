// Package recipe генерирует конфигурацию и рецепт для диагностического toolchain.
//
// Registry — явный реестр шаблонов, создаётся один раз при старте сервиса
// и передаётся по ссылке. Соответствие "диагностика → шаблон" задаётся
// картой, а не форматированием имени файла: неизвестная диагностика
// отклоняется сразу, до записи каких-либо файлов.
//
// Generator объединяет Registry и подготовку рабочей директории:
//
//	files, err := gen.Generate(ctx, recipe.Request{
//	    Diagnostic:  "perfmetrics",
//	    Constraints: constraints,
//	    StartYear:   2000,
//	    EndYear:     2001,
//	    Workdir:     ws.Dir,
//	})
//
// Поддерживаются два формата (Flavor):
//   - recipe   — config.yml + recipe.yml (YAML)
//   - namelist — esgf_config.xml + namelist.xml (XML, старый toolchain)
package recipe
